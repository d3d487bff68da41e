// Package esbuild bundles JavaScript and minifies CSS with the esbuild Go API.
package esbuild

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/fredrikaverpil/themekit/pipeline"
)

// DefaultGlobals maps imports that WordPress already provides as globals.
var DefaultGlobals = map[string]string{
	"jquery": "jQuery",
}

// BundleOptions configures JavaScript bundling.
type BundleOptions struct {
	// Root is the project root that file sources are relative to.
	Root string
	// Minify enables whitespace, identifier and syntax minification.
	Minify bool
	// SourceMap appends an inline source map.
	SourceMap bool
	// Globals maps import paths to global variables instead of bundling them.
	Globals map[string]string
}

// Bundle returns a stage that bundles each entry file with its imports into
// a single browser script named after the entry.
func Bundle(opts BundleOptions) pipeline.Stage {
	return pipeline.Map("esbuild", func(ctx context.Context, f *pipeline.File) (*pipeline.File, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sourceMap := api.SourceMapNone
		if opts.SourceMap {
			sourceMap = api.SourceMapInline
		}
		result := api.Build(api.BuildOptions{
			Stdin: &api.StdinOptions{
				Contents:   string(f.Contents),
				ResolveDir: filepath.Join(opts.Root, filepath.FromSlash(path.Dir(f.Source))),
				Sourcefile: f.Source,
				Loader:     api.LoaderJS,
			},
			AbsWorkingDir:     opts.Root,
			Outfile:           path.Base(f.Path),
			Bundle:            true,
			Write:             false,
			Format:            api.FormatIIFE,
			Platform:          api.PlatformBrowser,
			Target:            api.ES2015,
			MinifyWhitespace:  opts.Minify,
			MinifyIdentifiers: opts.Minify,
			MinifySyntax:      opts.Minify,
			Sourcemap:         sourceMap,
			LogLevel:          api.LogLevelSilent,
			Plugins:           []api.Plugin{globalExternals(opts.Globals)},
		})
		if len(result.Errors) > 0 {
			return nil, messagesError(result.Errors)
		}
		js, ok := findOutput(result.OutputFiles, ".js")
		if !ok {
			return nil, errors.New("esbuild produced no output")
		}
		out := f.WithExt(".js")
		out.Contents = js
		return out, nil
	})
}

// CSSOptions configures CSS transformation.
type CSSOptions struct {
	Minify    bool
	SourceMap bool
}

// CSS returns a stage that minifies stylesheets or attaches a source map.
func CSS(opts CSSOptions) pipeline.Stage {
	return pipeline.Map("esbuild-css", func(ctx context.Context, f *pipeline.File) (*pipeline.File, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sourceMap := api.SourceMapNone
		if opts.SourceMap {
			sourceMap = api.SourceMapInline
		}
		result := api.Transform(string(f.Contents), api.TransformOptions{
			Loader:           api.LoaderCSS,
			Sourcefile:       f.Path,
			MinifyWhitespace: opts.Minify,
			MinifySyntax:     opts.Minify,
			Sourcemap:        sourceMap,
			LogLevel:         api.LogLevelSilent,
		})
		if len(result.Errors) > 0 {
			return nil, messagesError(result.Errors)
		}
		out := f.Clone()
		out.Contents = result.Code
		return out, nil
	})
}

// globalExternals resolves the given imports to `module.exports = <global>`.
func globalExternals(globals map[string]string) api.Plugin {
	if globals == nil {
		globals = DefaultGlobals
	}
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, regexp.QuoteMeta(name))
	}
	slices.Sort(names)
	filter := "^(" + strings.Join(names, "|") + ")$"

	return api.Plugin{
		Name: "global-externals",
		Setup: func(build api.PluginBuild) {
			if len(names) == 0 {
				return
			}
			build.OnResolve(api.OnResolveOptions{Filter: filter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: "global-external"}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "global-external"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := "module.exports = " + globals[args.Path] + ";"
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

func findOutput(files []api.OutputFile, ext string) ([]byte, bool) {
	for _, f := range files {
		if strings.HasSuffix(f.Path, ext) {
			return f.Contents, true
		}
	}
	return nil, false
}

func messagesError(msgs []api.Message) error {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return errors.New(strings.TrimSpace(strings.Join(formatted, "")))
}
