package pk

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownTask is returned when looking up a task that was never registered.
	ErrUnknownTask = errors.New("unknown task")
	// ErrDuplicateName is returned when registering a second task under a taken name.
	ErrDuplicateName = errors.New("duplicate task name")
)

// Registry is the table of named entry points.
// It is filled once at startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds tasks to the registry. Either all tasks are added or, when
// a name is missing or taken, none are.
func (r *Registry) Register(tasks ...*Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t == nil || t.Name() == "" {
			return fmt.Errorf("register: task must have a name")
		}
		if _, ok := r.tasks[t.Name()]; ok || seen[t.Name()] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, t.Name())
		}
		seen[t.Name()] = true
	}
	for _, t := range tasks {
		r.tasks[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return nil
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTask, name)
	}
	return t, nil
}

// Tasks returns all registered tasks in registration order.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]*Task, 0, len(r.order))
	for _, name := range r.order {
		tasks = append(tasks, r.tasks[name])
	}
	return tasks
}

// Names returns the registered task names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	names = append(names, r.order...)
	sort.Strings(names)
	return names
}
