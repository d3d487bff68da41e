package pk

import (
	"context"
	"sync"
)

// Runnable represents a unit of execution in the task graph.
// The run method is intentionally unexported to keep execution internals private.
type Runnable interface {
	run(ctx context.Context) error
}

// Kind tells how a Group runs its children.
type Kind int

const (
	// KindSerial runs children one after another.
	KindSerial Kind = iota
	// KindParallel starts all children at once.
	KindParallel
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Group is a composition of runnables. Groups are plain data: they can be
// inspected with Kind and Children before anything runs.
type Group struct {
	kind      Kind
	runnables []Runnable
}

// Serial composes multiple runnables to execute sequentially.
// Each child starts only after the previous one completed. Execution stops on
// the first error and the remaining children never start.
func Serial(runnables ...Runnable) *Group {
	return &Group{kind: KindSerial, runnables: runnables}
}

// Parallel composes multiple runnables to execute concurrently.
// All runnables are started simultaneously. The group fails as soon as any
// child fails; children already running are not cancelled, they run to their
// own completion and their outcome is ignored. Returns nil once every child
// has succeeded.
func Parallel(runnables ...Runnable) *Group {
	return &Group{kind: KindParallel, runnables: runnables}
}

// Kind returns how the group runs its children.
func (g *Group) Kind() Kind {
	return g.kind
}

// Children returns the composed runnables in declaration order.
func (g *Group) Children() []Runnable {
	return append([]Runnable(nil), g.runnables...)
}

func (g *Group) run(ctx context.Context) error {
	if g.kind == KindParallel {
		return g.runParallel(ctx)
	}
	return g.runSerial(ctx)
}

func (g *Group) runSerial(ctx context.Context) error {
	for _, r := range g.runnables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) runParallel(ctx context.Context) error {
	if len(g.runnables) == 0 {
		return nil
	}

	// Check if context is already canceled.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Single item? Run directly without buffering.
	if len(g.runnables) == 1 {
		return g.runnables[0].run(ctx)
	}

	parentOut := OutputFromContext(ctx)
	var flushMu sync.Mutex

	// Buffered so children finishing after an early return never block.
	errc := make(chan error, len(g.runnables))
	for _, r := range g.runnables {
		buf := newBufferedOutput(parentOut)
		go func() {
			err := r.run(WithOutput(ctx, buf.Output()))

			// Flush immediately on completion (first-to-complete flushes first).
			flushMu.Lock()
			buf.Flush()
			flushMu.Unlock()

			errc <- err
		}()
	}

	for range g.runnables {
		if err := <-errc; err != nil {
			return err
		}
	}
	return nil
}

// Do creates a Runnable that executes a function.
//
//	pk.Do(func(ctx context.Context) error {
//	    return os.RemoveAll("dist")
//	})
func Do(fn func(ctx context.Context) error) Runnable {
	return &doRunnable{fn: fn}
}

// doRunnable wraps a function as a Runnable.
type doRunnable struct {
	fn func(ctx context.Context) error
}

func (d *doRunnable) run(ctx context.Context) error {
	return d.fn(ctx)
}
