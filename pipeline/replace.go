package pipeline

import (
	"bytes"
	"context"
)

// sniffLen is how much of a file is inspected to decide whether it is binary.
const sniffLen = 8000

// Replace returns a stage that replaces every occurrence of token with value
// in text files. Files that look binary pass through untouched.
func Replace(token, value string) Stage {
	old, repl := []byte(token), []byte(value)
	return Map("replace", func(_ context.Context, f *File) (*File, error) {
		if isBinary(f.Contents) || !bytes.Contains(f.Contents, old) {
			return f, nil
		}
		c := f.Clone()
		c.Contents = bytes.ReplaceAll(f.Contents, old, repl)
		return c, nil
	})
}

// isBinary reports whether data contains a NUL byte in its first sniffLen bytes.
func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
