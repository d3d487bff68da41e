// Package config describes where a theme's assets come from and where they go.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrUnknownCategory is returned when resolving a category that has no entry.
	ErrUnknownCategory = errors.New("unknown path category")
	// ErrOutsideRoot is returned when a destination does not lie below the project root.
	ErrOutsideRoot = errors.New("destination outside project root")
	// ErrInvalidName is returned for project names that cannot be used as a directory name.
	ErrInvalidName = errors.New("invalid project name")
)

// Category names a group of assets handled by one task.
type Category string

const (
	Styles             Category = "styles"
	Images             Category = "images"
	Scripts            Category = "scripts"
	Other              Category = "other"
	Package            Category = "package"
	WordPressContainer Category = "wordpressContainer"
)

// Categories lists every category in a stable order.
var Categories = []Category{Styles, Images, Scripts, Other, Package, WordPressContainer}

// Entry is the source and destination of one category.
type Entry struct {
	// Sources are glob patterns relative to the project root.
	// Patterns prefixed with "!" exclude files matched by earlier ones.
	Sources []string `yaml:"src" toml:"src"`
	// Dest is a directory relative to the project root.
	Dest string `yaml:"dest" toml:"dest"`
}

const (
	// ThemeDir is the directory holding the theme sources.
	ThemeDir = "theme-development"
	// DistDir holds compiled assets. It is removed by clean.
	DistDir = ThemeDir + "/dist"

	srcDir  = ThemeDir + "/src/assets"
	distDir = DistDir + "/assets"
)

// DefaultEntries returns the conventional theme layout for the project name.
func DefaultEntries(name string) map[Category]Entry {
	return map[Category]Entry{
		Styles: {
			Sources: []string{srcDir + "/scss/bundle.scss", srcDir + "/scss/admin.scss"},
			Dest:    distDir + "/css",
		},
		Images: {
			Sources: []string{srcDir + "/images/**/*.{jpg,jpeg,png,svg,gif}"},
			Dest:    distDir + "/images",
		},
		Scripts: {
			Sources: []string{srcDir + "/js/bundle.js", srcDir + "/js/admin.js"},
			Dest:    distDir + "/js",
		},
		Other: {
			Sources: []string{
				srcDir + "/**/*",
				"!" + srcDir + "/{images,js,scss}",
				"!" + srcDir + "/{images,js,scss}/**/*",
			},
			Dest: distDir,
		},
		WordPressContainer: {
			Sources: []string{
				ThemeDir + "/**/*",
				"!" + ThemeDir + "/src/**/*",
				"!" + ThemeDir + "/src",
			},
			Dest: "wp-content/themes/" + name,
		},
		Package: {
			Sources: []string{
				ThemeDir + "/**/*",
				"!.vscode",
				"!node_modules{,/**}",
				"!" + ThemeDir + "/packaged{,/**}",
				"!" + ThemeDir + "/src{,/**}",
				"!.babelrc",
				"!gulpfile.babel.js",
				"!.gitignore",
				"!package.json",
				"!package-lock.json",
			},
			Dest: ThemeDir + "/packaged",
		},
	}
}

// PathConfig is the immutable category table of one project.
type PathConfig struct {
	root    string
	name    string
	entries map[Category]Entry
}

// NewPathConfig builds the table for the project at root, starting from
// DefaultEntries and applying overrides. Fields left empty in an override
// keep their default.
func NewPathConfig(root, name string, overrides map[Category]Entry) (*PathConfig, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	entries := DefaultEntries(name)
	for cat, o := range overrides {
		e, ok := entries[cat]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownCategory, cat)
		}
		if len(o.Sources) > 0 {
			e.Sources = slices.Clone(o.Sources)
		}
		if o.Dest != "" {
			e.Dest = o.Dest
		}
		entries[cat] = e
	}

	for _, cat := range Categories {
		e := entries[cat]
		dest, err := insideRoot(absRoot, e.Dest)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cat, err)
		}
		e.Dest = dest
		entries[cat] = e
	}

	return &PathConfig{root: absRoot, name: name, entries: entries}, nil
}

// insideRoot returns dest as a clean slash-separated path relative to root.
func insideRoot(root, dest string) (string, error) {
	if dest == "" || filepath.IsAbs(dest) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, dest)
	}
	rel, err := filepath.Rel(root, filepath.Join(root, dest))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, dest)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, dest)
	}
	return filepath.ToSlash(rel), nil
}

// Resolve returns the source patterns and destination of a category.
func (c *PathConfig) Resolve(cat Category) ([]string, string, error) {
	e, ok := c.entries[cat]
	if !ok {
		return nil, "", fmt.Errorf("%w %q", ErrUnknownCategory, cat)
	}
	return slices.Clone(e.Sources), e.Dest, nil
}

// Root returns the absolute project root.
func (c *PathConfig) Root() string {
	return c.root
}

// ProjectName returns the injected project name.
func (c *PathConfig) ProjectName() string {
	return c.name
}

// ArchiveName returns the file name of the packaged theme.
func (c *PathConfig) ArchiveName() string {
	return c.name + ".zip"
}
