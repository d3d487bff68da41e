package pipeline

import (
	"context"

	"github.com/fredrikaverpil/themekit/pk"
)

// Stage transforms one file at a time.
// Returning no files drops the input; returning several emits them all.
type Stage interface {
	Name() string
	Apply(ctx context.Context, f *File) ([]*File, error)
}

// Collector is a Stage that needs the whole file set of a run at once.
// The runner gathers every file reaching it, ordered by Path, and calls
// Collect once; Apply is not used by the runner.
type Collector interface {
	Stage
	Collect(ctx context.Context, files []*File) ([]*File, error)
}

// StageFunc adapts a function to a Stage.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, f *File) ([]*File, error)
}

// NewStage returns a Stage named name that calls fn for every file.
func NewStage(name string, fn func(ctx context.Context, f *File) ([]*File, error)) *StageFunc {
	return &StageFunc{name: name, fn: fn}
}

// Map returns a Stage that replaces each file with the result of fn.
func Map(name string, fn func(ctx context.Context, f *File) (*File, error)) *StageFunc {
	return NewStage(name, func(ctx context.Context, f *File) ([]*File, error) {
		out, err := fn(ctx, f)
		if err != nil || out == nil {
			return nil, err
		}
		return []*File{out}, nil
	})
}

func (s *StageFunc) Name() string { return s.name }

func (s *StageFunc) Apply(ctx context.Context, f *File) ([]*File, error) {
	return s.fn(ctx, f)
}

// If returns s when cond holds and a pass-through stage otherwise.
// The condition is evaluated once, when the pipeline is declared.
func If(cond bool, s Stage) Stage {
	if cond {
		return s
	}
	return passthrough{name: s.Name()}
}

type passthrough struct{ name string }

func (p passthrough) Name() string { return p.name + " (off)" }

func (p passthrough) Apply(_ context.Context, f *File) ([]*File, error) {
	return []*File{f}, nil
}

// Tolerant wraps s so that its errors are reported on the task's stderr and
// the failing file is dropped instead of failing the task.
func Tolerant(s Stage) Stage {
	return tolerant{inner: s}
}

type tolerant struct{ inner Stage }

func (t tolerant) Name() string { return t.inner.Name() }

func (t tolerant) Apply(ctx context.Context, f *File) ([]*File, error) {
	out, err := t.inner.Apply(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		pk.Errorf(ctx, "%s: %s: %v\n", t.inner.Name(), f.Source, err)
		return nil, nil
	}
	return out, nil
}
