package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fredrikaverpil/themekit/config"
	"github.com/fredrikaverpil/themekit/internal/glob"
	"github.com/fredrikaverpil/themekit/pk"
)

// Spec declares one pipeline task.
type Spec struct {
	Category config.Category
	Stages   []Stage
	Notify   Notify
}

// Runner executes pipeline specs against one project.
// A Runner holds no state between runs and is safe for concurrent use.
type Runner struct {
	paths       *config.PathConfig
	listener    Listener
	concurrency int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithListener sets the listener notified after successful runs.
func WithListener(l Listener) RunnerOption {
	return func(r *Runner) {
		r.listener = l
	}
}

// WithConcurrency bounds how many files are processed at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRunner creates a runner for the project described by paths.
func NewRunner(paths *config.PathConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		paths:       paths,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Task wraps spec as a named pk task.
func (r *Runner) Task(name, usage string, spec Spec) *pk.Task {
	return pk.NewTask(name, usage, pk.Do(func(ctx context.Context) error {
		return r.Run(ctx, name, spec)
	}))
}

// Sources lazily yields the files of a category. Every iteration globs the
// filesystem again.
func (r *Runner) Sources(cat config.Category) iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		patterns, _, err := r.paths.Resolve(cat)
		if err != nil {
			yield(nil, err)
			return
		}
		set, err := glob.New(patterns...)
		if err != nil {
			yield(nil, err)
			return
		}
		fsys := os.DirFS(r.paths.Root())
		for m, err := range set.Walk(fsys) {
			if err != nil {
				yield(nil, err)
				return
			}
			f, err := readFile(fsys, m)
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}

func readFile(fsys fs.FS, m glob.Match) (*File, error) {
	info, err := fs.Stat(fsys, m.Path)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(fsys, m.Path)
	if err != nil {
		return nil, err
	}
	return &File{
		Path:     m.Rel(),
		Source:   m.Path,
		Contents: data,
		Mode:     info.Mode().Perm(),
		ModTime:  info.ModTime(),
	}, nil
}

// Run streams the category's files through the stages and writes the
// results below the category's destination.
//
// Files are processed concurrently. The first failing stage fails the run
// with a *StageError; no further files are started, files already in flight
// finish and nothing already written is rolled back. Zero matching files is
// a successful no-op. The listener is only notified after success.
func (r *Runner) Run(ctx context.Context, name string, spec Spec) error {
	_, dest, err := r.paths.Resolve(spec.Category)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	// Stages up to the first collector run per file.
	perFile := spec.Stages
	var rest []Stage
	if i := slices.IndexFunc(spec.Stages, isCollector); i >= 0 {
		perFile, rest = spec.Stages[:i], spec.Stages[i:]
	}

	var (
		mu        sync.Mutex
		written   []string
		collected []*File
		matched   int
	)
	write := func(files []*File) error {
		for _, f := range files {
			p, err := r.write(dest, f)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			mu.Lock()
			written = append(written, p)
			mu.Unlock()
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for f, err := range r.Sources(spec.Category) {
		if err != nil {
			g.Go(func() error { return fmt.Errorf("%s: %w", name, err) })
			break
		}
		if gctx.Err() != nil {
			break
		}
		matched++
		g.Go(func() error {
			out, err := applyStages(ctx, name, perFile, []*File{f})
			if err != nil {
				return err
			}
			if rest != nil {
				mu.Lock()
				collected = append(collected, out...)
				mu.Unlock()
				return nil
			}
			return write(out)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if rest != nil && len(collected) > 0 {
		slices.SortFunc(collected, func(a, b *File) int { return strings.Compare(a.Path, b.Path) })
		out, err := applyStages(ctx, name, rest, collected)
		if err != nil {
			return err
		}
		if err := write(out); err != nil {
			return err
		}
	}

	if matched == 0 {
		pk.Printf(ctx, "no files matched\n")
	} else if pk.Verbose(ctx) {
		slices.Sort(written)
		for _, p := range written {
			pk.Printf(ctx, "  %s\n", p)
		}
	}
	r.notify(spec.Notify, written)
	return nil
}

// applyStages runs files through stages in order. A collector receives the
// whole current set.
func applyStages(ctx context.Context, task string, stages []Stage, files []*File) ([]*File, error) {
	for _, s := range stages {
		if c, ok := s.(Collector); ok {
			out, err := c.Collect(ctx, files)
			if err != nil {
				return nil, &StageError{Task: task, Stage: s.Name(), Err: err}
			}
			files = out
			continue
		}
		var next []*File
		for _, f := range files {
			out, err := s.Apply(ctx, f)
			if err != nil {
				return nil, &StageError{Task: task, Stage: s.Name(), File: f.Source, Err: err}
			}
			next = append(next, out...)
		}
		files = next
		if len(files) == 0 {
			return nil, nil
		}
	}
	return files, nil
}

func isCollector(s Stage) bool {
	_, ok := s.(Collector)
	return ok
}

// write stores f below dest and returns its root-relative path.
func (r *Runner) write(dest string, f *File) (string, error) {
	rel := path.Clean(f.Path)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", fmt.Errorf("output path %q escapes %s", f.Path, dest)
	}
	out := path.Join(dest, rel)
	target := filepath.Join(r.paths.Root(), filepath.FromSlash(out))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	mode := f.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(target, f.Contents, mode); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Runner) notify(n Notify, written []string) {
	if r.listener == nil || len(written) == 0 {
		return
	}
	switch n {
	case NotifyInject:
		r.listener.Inject(written...)
	case NotifyReload:
		r.listener.Reload()
	}
}
