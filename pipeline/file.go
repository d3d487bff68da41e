// Package pipeline streams the files of a path category through a list of
// stages and writes the results below the category's destination.
package pipeline

import (
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// File is one file flowing through a pipeline.
type File struct {
	// Path is slash-separated and relative to the destination directory.
	// Stages rename files by changing it.
	Path string
	// Source is the root-relative path the file was read from.
	// It is empty for files produced by a Collector.
	Source   string
	Contents []byte
	Mode     fs.FileMode
	ModTime  time.Time
}

// Clone returns a deep copy of f.
func (f *File) Clone() *File {
	c := *f
	c.Contents = slices.Clone(f.Contents)
	return &c
}

// Ext returns the extension of Path, including the dot.
func (f *File) Ext() string {
	return path.Ext(f.Path)
}

// WithExt returns a copy of f whose Path has its extension replaced by ext.
func (f *File) WithExt(ext string) *File {
	c := f.Clone()
	c.Path = strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext
	return c
}
