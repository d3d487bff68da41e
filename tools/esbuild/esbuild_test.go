package esbuild

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredrikaverpil/themekit/pipeline"
)

const entry = `import $ from 'jquery';
import { greet } from './greet';

$(function () {
	const message = greet('world');
	document.body.append(message);
});
`

const greet = `export function greet(name) {
	return ` + "`hello ${name}`" + `;
}
`

func setupScripts(t *testing.T) (string, *pipeline.File) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "src", "js")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.js"), []byte(greet), 0o644))
	return root, &pipeline.File{Path: "bundle.js", Source: "src/js/bundle.js", Contents: []byte(entry)}
}

func bundle(t *testing.T, opts BundleOptions, f *pipeline.File) string {
	t.Helper()
	out, err := Bundle(opts).Apply(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bundle.js", out[0].Path)
	return string(out[0].Contents)
}

func TestBundle_Development(t *testing.T) {
	root, f := setupScripts(t)
	js := bundle(t, BundleOptions{Root: root, SourceMap: true}, f)

	assert.Contains(t, js, "module.exports = jQuery")
	assert.Contains(t, js, "hello ")
	assert.Contains(t, js, "sourceMappingURL=data:application/json")
	assert.NotContains(t, js, "from './greet'", "imports are bundled")
	assert.Contains(t, js, "(() => {", "wrapped in an IIFE")
}

func TestBundle_Production(t *testing.T) {
	root, f := setupScripts(t)
	dev := bundle(t, BundleOptions{Root: root}, f)
	prod := bundle(t, BundleOptions{Root: root, Minify: true}, f)

	assert.NotContains(t, prod, "sourceMappingURL")
	assert.Less(t, len(prod), len(dev))
	assert.Contains(t, prod, "jQuery")
}

func TestBundle_Reproducible(t *testing.T) {
	root, f := setupScripts(t)
	opts := BundleOptions{Root: root, Minify: true}
	assert.Equal(t, bundle(t, opts, f), bundle(t, opts, f))
}

func TestBundle_SyntaxError(t *testing.T) {
	root, _ := setupScripts(t)
	bad := &pipeline.File{Path: "bundle.js", Source: "src/js/bundle.js", Contents: []byte("const = ;")}
	_, err := Bundle(BundleOptions{Root: root}).Apply(context.Background(), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle.js")
}

func TestBundle_MissingImport(t *testing.T) {
	root, _ := setupScripts(t)
	f := &pipeline.File{Path: "admin.js", Source: "src/js/admin.js", Contents: []byte("import './nope';")}
	_, err := Bundle(BundleOptions{Root: root}).Apply(context.Background(), f)
	assert.Error(t, err)
}

func TestCSS(t *testing.T) {
	in := &pipeline.File{Path: "bundle.css", Contents: []byte("body {\n  color: red;\n}\n")}

	t.Run("Minify", func(t *testing.T) {
		out, err := CSS(CSSOptions{Minify: true}).Apply(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "body{color:red}", strings.TrimSpace(string(out[0].Contents)))
	})

	t.Run("SourceMap", func(t *testing.T) {
		out, err := CSS(CSSOptions{SourceMap: true}).Apply(context.Background(), in)
		require.NoError(t, err)
		css := string(out[0].Contents)
		assert.Contains(t, css, "color: red")
		assert.Contains(t, css, "sourceMappingURL=data:application/json")
	})
}
