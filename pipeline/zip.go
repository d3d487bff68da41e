package pipeline

import (
	"bytes"
	"context"
	"time"

	"github.com/klauspost/compress/zip"
)

// Zip returns a collector that packs every file of the run into one archive
// named name. Entries keep their paths and modification times, so the same
// inputs always give the same archive.
func Zip(name string) Collector {
	return zipStage{name: name}
}

type zipStage struct{ name string }

func (z zipStage) Name() string { return "zip" }

// Apply passes files through; the runner calls Collect instead.
func (z zipStage) Apply(_ context.Context, f *File) ([]*File, error) {
	return []*File{f}, nil
}

func (z zipStage) Collect(ctx context.Context, files []*File) ([]*File, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	var latest time.Time
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr := &zip.FileHeader{
			Name:     f.Path,
			Method:   zip.Deflate,
			Modified: f.ModTime,
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr.SetMode(mode)
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(f.Contents); err != nil {
			return nil, err
		}
		if f.ModTime.After(latest) {
			latest = f.ModTime
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return []*File{{
		Path:     z.name,
		Contents: buf.Bytes(),
		Mode:     0o644,
		ModTime:  latest,
	}}, nil
}
