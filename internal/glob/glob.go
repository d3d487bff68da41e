// Package glob evaluates ordered pattern lists the way asset pipelines expect:
// plain patterns select files, patterns prefixed with "!" exclude them again.
package glob

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrBadPattern is returned for patterns doublestar cannot parse.
var ErrBadPattern = errors.New("bad glob pattern")

// errStop ends a walk early when the consumer stops iterating.
var errStop = errors.New("stop")

// Match is a file selected by a Set.
type Match struct {
	// Path is the slash-separated path relative to the walked filesystem.
	Path string
	// Base is the static prefix of the pattern that selected the file.
	// Destination paths are computed relative to it.
	Base string
}

// Rel returns Path relative to Base.
func (m Match) Rel() string {
	if m.Base == "." || m.Base == "" {
		return m.Path
	}
	return strings.TrimPrefix(m.Path, m.Base+"/")
}

// Set is an immutable list of include and exclude patterns.
type Set struct {
	include []string
	exclude []string
}

// New parses patterns. Exclusions may appear anywhere in the list; they are
// always applied after all positive matches.
func New(patterns ...string) (*Set, error) {
	s := &Set{}
	for _, p := range patterns {
		negated := strings.HasPrefix(p, "!")
		p = normalize(strings.TrimPrefix(p, "!"))
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
		if negated {
			s.exclude = append(s.exclude, p)
		} else {
			s.include = append(s.include, p)
		}
	}
	return s, nil
}

// MustNew is like New but panics on invalid patterns.
// Use it for patterns known at compile time.
func MustNew(patterns ...string) *Set {
	s, err := New(patterns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Includes returns the positive patterns in declaration order.
func (s *Set) Includes() []string {
	return append([]string(nil), s.include...)
}

// Match reports whether the slash-separated path p is selected by the set.
func (s *Set) Match(p string) bool {
	p = normalize(p)
	matched := false
	for _, pattern := range s.include {
		if ok, _ := doublestar.Match(pattern, p); ok {
			matched = true
			break
		}
	}
	return matched && !s.excluded(p)
}

func (s *Set) excluded(p string) bool {
	for _, pattern := range s.exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// Walk lazily yields every regular file in fsys selected by the set.
// Files matched by several include patterns are yielded once, attributed to
// the first pattern. Each call walks the filesystem again.
func (s *Set) Walk(fsys fs.FS) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		seen := make(map[string]bool)
		for _, pattern := range s.include {
			base, _ := doublestar.SplitPattern(pattern)
			err := doublestar.GlobWalk(fsys, pattern, func(p string, d fs.DirEntry) error {
				if d.IsDir() || seen[p] || s.excluded(p) {
					return nil
				}
				seen[p] = true
				if !yield(Match{Path: p, Base: base}, nil) {
					return errStop
				}
				return nil
			})
			if errors.Is(err, errStop) {
				return
			}
			if err != nil {
				yield(Match{}, fmt.Errorf("glob %q: %w", pattern, err))
				return
			}
		}
	}
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return path.Clean(p)
}
