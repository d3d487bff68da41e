// Package theme provides the asset tasks of a WordPress theme.
// This is a "task" package - it wires the pipeline stages and tools into
// named, composable tasks.
package theme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fredrikaverpil/themekit/config"
	"github.com/fredrikaverpil/themekit/livereload"
	"github.com/fredrikaverpil/themekit/pipeline"
	"github.com/fredrikaverpil/themekit/pk"
	"github.com/fredrikaverpil/themekit/tools/esbuild"
	"github.com/fredrikaverpil/themekit/tools/imagemin"
	"github.com/fredrikaverpil/themekit/tools/sass"
)

// Token is replaced by the project name in files copied into WordPress and
// in the packaged archive.
const Token = "_themename"

// WatchDir is the only directory watch observes. Every binding lies below
// it; the WordPress container is left alone.
const WatchDir = config.ThemeDir

// Task names.
const (
	NameServe           = "serve"
	NameReload          = "reload"
	NameClean           = "clean"
	NameStyles          = "styles"
	NameImages          = "images"
	NameScripts         = "scripts"
	NameCopy            = "copy"
	NameCopyToWordpress = "copyToWordpress"
	NameCompress        = "compress"
	NameWatch           = "watch"
	NameDev             = "dev"
	NameBuild           = "build"
	NameBundle          = "bundle"
)

// Names lists every task in registration order.
var Names = []string{
	NameServe, NameReload, NameClean, NameStyles, NameImages, NameWatch, NameCopy,
	NameCopyToWordpress, NameScripts, NameCompress, NameDev, NameBuild, NameBundle,
}

var usages = map[string]string{
	NameServe:           "start the live-reload proxy",
	NameReload:          "reload connected browsers",
	NameClean:           "remove build output",
	NameStyles:          "compile SCSS to CSS",
	NameImages:          "copy and optimize images",
	NameScripts:         "bundle JavaScript entries",
	NameCopy:            "copy fonts and other static assets",
	NameCopyToWordpress: "copy the theme into WordPress",
	NameCompress:        "package the theme as a zip archive",
	NameWatch:           "rebuild on change",
	NameDev:             "build, serve and watch",
	NameBuild:           "build all assets",
	NameBundle:          "build and package the theme",
}

// Usage returns the one-line description of a task.
func Usage(name string) string {
	return usages[name]
}

// Options configures the theme tasks. They are fixed for the lifetime of
// the returned Theme.
type Options struct {
	// Production enables minification and image optimization and disables
	// source maps.
	Production bool
	// Root is the project root.
	Root string
	// Settings carries the project name, server and watch configuration.
	Settings *config.Settings

	// Debounce and Queue override the watch policy from Settings when set.
	Debounce time.Duration
	Queue    bool

	// Logger receives live-reload server events.
	Logger *slog.Logger
	// Listener replaces the live-reload server as the receiver of reload
	// notifications.
	Listener pipeline.Listener
	// StyleCompiler replaces dart-sass.
	StyleCompiler pipeline.Stage
	// Concurrency bounds per-task file concurrency.
	Concurrency int
}

// Theme holds the tasks of one project.
type Theme struct {
	Registry *pk.Registry
	Paths    *config.PathConfig
	Server   *livereload.Server

	Serve           *pk.Task
	Reload          *pk.Task
	Clean           *pk.Task
	Styles          *pk.Task
	Images          *pk.Task
	Scripts         *pk.Task
	Copy            *pk.Task
	CopyToWordpress *pk.Task
	Compress        *pk.Task
	Watch           *pk.Task
	Dev             *pk.Task
	Build           *pk.Task
	Bundle          *pk.Task

	proxy  string
	binDir string
}

// New builds every task and registers it.
func New(opts Options) (*Theme, error) {
	if opts.Settings == nil {
		return nil, errors.New("theme: settings are required")
	}
	paths, err := opts.Settings.PathConfig(opts.Root)
	if err != nil {
		return nil, err
	}
	server, err := livereload.New(livereload.Options{
		Listen: opts.Settings.Listen,
		Proxy:  opts.Settings.Proxy,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	var listener pipeline.Listener = server
	if opts.Listener != nil {
		listener = opts.Listener
	}
	runner := pipeline.NewRunner(paths,
		pipeline.WithListener(listener),
		pipeline.WithConcurrency(opts.Concurrency),
	)

	t := &Theme{
		Registry: pk.NewRegistry(),
		Paths:    paths,
		Server:   server,
		proxy:    opts.Settings.Proxy,
		binDir:   filepath.Join(paths.Root(), "node_modules", ".bin"),
	}
	prod := opts.Production
	name := paths.ProjectName()

	compiler := opts.StyleCompiler
	if compiler == nil {
		compiler = sass.Stage(sass.Options{Root: paths.Root(), SourceMap: !prod})
	}

	t.Styles = runner.Task(NameStyles, usages[NameStyles], pipeline.Spec{
		Category: config.Styles,
		Stages: []pipeline.Stage{
			pipeline.Tolerant(compiler),
			pipeline.If(prod, esbuild.CSS(esbuild.CSSOptions{Minify: true})),
		},
		Notify: pipeline.NotifyInject,
	})
	t.Scripts = runner.Task(NameScripts, usages[NameScripts], pipeline.Spec{
		Category: config.Scripts,
		Stages: []pipeline.Stage{
			esbuild.Bundle(esbuild.BundleOptions{
				Root:      paths.Root(),
				Minify:    prod,
				SourceMap: !prod,
				Globals:   esbuild.DefaultGlobals,
			}),
		},
	})
	t.Images = runner.Task(NameImages, usages[NameImages], pipeline.Spec{
		Category: config.Images,
		Stages:   []pipeline.Stage{pipeline.If(prod, imagemin.New().Stage())},
	})
	t.Copy = runner.Task(NameCopy, usages[NameCopy], pipeline.Spec{
		Category: config.Other,
	})
	t.CopyToWordpress = runner.Task(NameCopyToWordpress, usages[NameCopyToWordpress], pipeline.Spec{
		Category: config.WordPressContainer,
		Stages:   []pipeline.Stage{pipeline.Replace(Token, name)},
	})
	t.Compress = runner.Task(NameCompress, usages[NameCompress], pipeline.Spec{
		Category: config.Package,
		Stages: []pipeline.Stage{
			pipeline.Replace(Token, name),
			pipeline.Zip(paths.ArchiveName()),
		},
	})

	t.Clean = pk.NewTask(NameClean, usages[NameClean], pk.Do(t.clean))
	t.Serve = pk.NewTask(NameServe, usages[NameServe], pk.Do(t.serve))
	t.Reload = pk.NewTask(NameReload, usages[NameReload], pk.Do(func(context.Context) error {
		listener.Reload()
		return nil
	}))

	watchOpts, err := watchOptions(opts)
	if err != nil {
		return nil, err
	}
	bindings, err := t.watchBindings()
	if err != nil {
		return nil, err
	}
	watchOpts = append(watchOpts, pk.WithWatchDir(WatchDir))
	t.Watch = pk.NewTask(NameWatch, usages[NameWatch], pk.Watch(paths.Root(), bindings, watchOpts...))

	t.Build = pk.NewTask(NameBuild, usages[NameBuild], pk.Serial(
		t.Clean,
		pk.Parallel(t.Styles, t.Scripts, t.Images, t.Copy),
	))
	t.Bundle = pk.NewTask(NameBundle, usages[NameBundle], pk.Serial(t.Build, t.Compress))
	t.Dev = pk.NewTask(NameDev, usages[NameDev], pk.Serial(
		t.Clean,
		pk.Parallel(t.Styles, t.Scripts, t.Images, t.Copy, t.CopyToWordpress),
		t.Serve,
		t.Watch,
	))

	if err := t.Registry.Register(
		t.Serve, t.Reload, t.Clean, t.Styles, t.Images, t.Watch, t.Copy,
		t.CopyToWordpress, t.Scripts, t.Compress, t.Dev, t.Build, t.Bundle,
	); err != nil {
		return nil, err
	}
	return t, nil
}

func watchOptions(opts Options) ([]pk.WatchOption, error) {
	debounce := opts.Settings.Debounce
	if opts.Debounce != 0 {
		debounce = opts.Debounce
	}
	if debounce < 0 {
		return nil, fmt.Errorf("watch: negative debounce %s", debounce)
	}
	var out []pk.WatchOption
	if debounce > 0 {
		out = append(out, pk.WithDebounce(debounce))
	}
	if opts.Queue || opts.Settings.Queue {
		out = append(out, pk.WithQueue())
	}
	return out, nil
}

// watchBindings maps source changes to the tasks that rebuild them.
// Pipeline tasks notify the browser themselves; PHP templates are not
// built, so they reload directly.
func (t *Theme) watchBindings() ([]pk.WatchBinding, error) {
	images, _, err := t.Paths.Resolve(config.Images)
	if err != nil {
		return nil, err
	}
	other, _, err := t.Paths.Resolve(config.Other)
	if err != nil {
		return nil, err
	}
	return []pk.WatchBinding{
		{Patterns: []string{config.ThemeDir + "/src/assets/scss/**/*.scss"}, Trigger: t.Styles},
		{Patterns: []string{config.ThemeDir + "/src/assets/js/**/*.js"}, Trigger: pk.Serial(t.Scripts)},
		{Patterns: []string{config.ThemeDir + "/**/*.php"}, Trigger: t.Reload},
		{Patterns: images, Trigger: pk.Serial(t.Images)},
		{Patterns: other, Trigger: pk.Serial(t.Copy, t.CopyToWordpress)},
		{Patterns: []string{config.DistDir + "/**/*"}, Trigger: t.CopyToWordpress},
	}, nil
}

// Execute runs the named task as a fresh execution. Tools installed under
// node_modules/.bin take precedence over PATH.
func (t *Theme) Execute(ctx context.Context, name string) error {
	task, err := t.Registry.Lookup(name)
	if err != nil {
		return err
	}
	return pk.Execute(pk.WithBinDir(ctx, t.binDir), task)
}

func (t *Theme) clean(ctx context.Context) error {
	_, wpDest, err := t.Paths.Resolve(config.WordPressContainer)
	if err != nil {
		return err
	}
	for _, dir := range []string{config.DistDir, wpDest} {
		if err := os.RemoveAll(filepath.Join(t.Paths.Root(), filepath.FromSlash(dir))); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if pk.Verbose(ctx) {
			pk.Printf(ctx, "  removed %s\n", dir)
		}
	}
	return nil
}

func (t *Theme) serve(ctx context.Context) error {
	if err := t.Server.Start(ctx); err != nil {
		return err
	}
	pk.Printf(ctx, "proxying %s at http://%s\n", t.proxy, t.Server.Addr())
	return nil
}
