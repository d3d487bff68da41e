// Package sass provides dart-sass integration.
// sass is an npm package; it is looked up in the context's bin directories
// (node_modules/.bin) before PATH.
package sass

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/fredrikaverpil/themekit/pipeline"
	"github.com/fredrikaverpil/themekit/pk"
)

// Name is the binary name for dart-sass.
const Name = "sass"

// Options configures compilation.
type Options struct {
	// Root is the project root that file sources are relative to.
	Root string
	// SourceMap embeds an inline source map pointing back at the SCSS.
	SourceMap bool
	// LoadPaths are extra directories searched by @use and @import.
	LoadPaths []string
}

// Stage returns a pipeline stage that compiles SCSS files to CSS.
// Partials (files starting with "_") are dropped.
func Stage(opts Options) pipeline.Stage {
	return pipeline.NewStage(Name, func(ctx context.Context, f *pipeline.File) ([]*pipeline.File, error) {
		if strings.HasPrefix(path.Base(f.Path), "_") {
			return nil, nil
		}
		dir := filepath.Join(opts.Root, filepath.FromSlash(path.Dir(f.Source)))
		css, err := Compile(ctx, f.Contents, append([]string{dir}, opts.LoadPaths...), opts.SourceMap)
		if err != nil {
			return nil, err
		}
		out := f.WithExt(".css")
		out.Contents = css
		return []*pipeline.File{out}, nil
	})
}

// Compile runs sass on src and returns the CSS.
func Compile(ctx context.Context, src []byte, loadPaths []string, sourceMap bool) ([]byte, error) {
	args := []string{"--stdin", "--style=expanded", "--no-error-css"}
	for _, p := range loadPaths {
		args = append(args, "--load-path="+p)
	}
	if sourceMap {
		args = append(args, "--embed-source-map", "--embed-sources")
	} else {
		args = append(args, "--no-source-map")
	}

	var stdout, stderr bytes.Buffer
	cmd := pk.Command(ctx, Name, args...)
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w\n%s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
