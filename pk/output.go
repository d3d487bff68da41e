package pk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Output holds stdout and stderr writers for task output.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// StdOutput returns an Output that writes to os.Stdout and os.Stderr.
func StdOutput() *Output {
	return &Output{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// outputKey is the context key for the current Output.
type outputKey struct{}

// WithOutput returns a new context with the given output set.
func WithOutput(ctx context.Context, out *Output) context.Context {
	return context.WithValue(ctx, outputKey{}, out)
}

// OutputFromContext returns the output from the context.
// Falls back to StdOutput when none is set.
func OutputFromContext(ctx context.Context) *Output {
	if out, ok := ctx.Value(outputKey{}).(*Output); ok && out != nil {
		return out
	}
	return StdOutput()
}

// Printf formats and writes to the context's stdout.
func Printf(ctx context.Context, format string, a ...any) {
	_, _ = fmt.Fprintf(OutputFromContext(ctx).Stdout, format, a...)
}

// Println writes to the context's stdout with a trailing newline.
func Println(ctx context.Context, a ...any) {
	_, _ = fmt.Fprintln(OutputFromContext(ctx).Stdout, a...)
}

// Errorf formats and writes to the context's stderr.
func Errorf(ctx context.Context, format string, a ...any) {
	_, _ = fmt.Fprintf(OutputFromContext(ctx).Stderr, format, a...)
}

// bufferedOutput captures output per-goroutine for parallel execution.
// Flushes to parent Output on completion.
type bufferedOutput struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	parent *Output
}

// newBufferedOutput creates a new buffered output that will flush to parent.
func newBufferedOutput(parent *Output) *bufferedOutput {
	return &bufferedOutput{parent: parent}
}

// Output returns an Output that writes to the internal buffers.
// The writers are safe for concurrent use, since a pipeline task writes
// from several file workers at once.
func (b *bufferedOutput) Output() *Output {
	return &Output{
		Stdout: &lockedWriter{mu: &b.mu, w: &b.stdout},
		Stderr: &lockedWriter{mu: &b.mu, w: &b.stderr},
	}
}

// Flush writes all buffered content to the parent output.
// This should be called with external synchronization when used in parallel.
func (b *bufferedOutput) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stdout.Len() > 0 {
		_, _ = b.parent.Stdout.Write(b.stdout.Bytes())
		b.stdout.Reset()
	}
	if b.stderr.Len() > 0 {
		_, _ = b.parent.Stderr.Write(b.stderr.Bytes())
		b.stderr.Reset()
	}
}

// lockedWriter wraps a writer with a mutex for safe concurrent writes.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
