package pk

import (
	"context"
	"slices"
	"sync"
	"time"
)

// State is the lifecycle state of a task within one execution.
type State int

const (
	// StatePending is the state of every task that has not started yet.
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event records a state transition of a task.
type Event struct {
	Task  string
	State State
	Err   error // Set for StateFailed.
	Time  time.Time
}

// trackerKey is the context key for the execution tracker.
type trackerKey struct{}

// Tracker records what happened during one execution of a task graph.
// It also deduplicates tasks: a task reached twice in the same execution
// only runs the first time.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	done   map[string]bool
	events []Event
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{done: make(map[string]bool)}
}

// markDone records that a task has started.
// Returns true if it was already started in this execution (should skip).
func (t *Tracker) markDone(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done[name] {
		return true
	}
	t.done[name] = true
	return false
}

func (t *Tracker) record(name string, state State, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Task: name, State: state, Err: err, Time: time.Now()})
}

// Events returns all recorded transitions in the order they happened.
func (t *Tracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// State returns the latest state of the named task.
func (t *Tracker) State(name string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.events) - 1; i >= 0; i-- {
		if t.events[i].Task == name {
			return t.events[i].State
		}
	}
	return StatePending
}

// Started returns the names of tasks that reached StateRunning, in order.
func (t *Tracker) Started() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var names []string
	for _, e := range t.events {
		if e.State == StateRunning {
			names = append(names, e.Task)
		}
	}
	return names
}

// WithTracker returns a new context with the given tracker set.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFromContext returns the execution tracker from the context.
// Returns nil if no tracker is set.
func TrackerFromContext(ctx context.Context) *Tracker {
	if t, ok := ctx.Value(trackerKey{}).(*Tracker); ok {
		return t
	}
	return nil
}
