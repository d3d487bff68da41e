// Package imagemin losslessly shrinks theme images.
//
// PNG files are decoded and re-encoded, which keeps the pixels but drops
// ancillary chunks such as gAMA, iCCP and tEXt. Images that rely on an
// embedded color profile or gamma may display differently afterwards.
// JPEG and GIF are passed through unchanged.
package imagemin

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/fredrikaverpil/themekit/pipeline"
)

const svgMediaType = "image/svg+xml"

// Optimizer rewrites images in a smaller form. It is safe for concurrent use.
type Optimizer struct {
	m *minify.M
}

// New creates an optimizer.
func New() *Optimizer {
	m := minify.New()
	m.AddFunc(svgMediaType, svg.Minify)
	return &Optimizer{m: m}
}

// Optimize returns the optimized image, or data itself when the format is
// not handled or the result would not be smaller.
// Supported: SVG (markup minification) and PNG (maximum deflate level).
// JPEG and GIF pass through.
func (o *Optimizer) Optimize(ext string, data []byte) ([]byte, error) {
	var out []byte
	switch strings.ToLower(ext) {
	case ".svg":
		b, err := o.m.Bytes(svgMediaType, data)
		if err != nil {
			return nil, fmt.Errorf("minify svg: %w", err)
		}
		out = b
	case ".png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		out = buf.Bytes()
	default:
		return data, nil
	}
	if len(out) >= len(data) {
		return data, nil
	}
	return out, nil
}

// Stage returns a pipeline stage that optimizes every image.
func (o *Optimizer) Stage() pipeline.Stage {
	return pipeline.Map("imagemin", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		data, err := o.Optimize(f.Ext(), f.Contents)
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = data
		return out, nil
	})
}
