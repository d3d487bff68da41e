package pk

import (
	"context"
	"fmt"
)

// Task represents a named, executable unit of work.
// Create tasks with NewTask.
type Task struct {
	name   string
	usage  string
	body   Runnable
	hidden bool
}

// NewTask creates a new task with a Runnable body.
// Use Do() to wrap a function as a Runnable.
//
// Example with function body:
//
//	var Clean = pk.NewTask("clean", "remove build output", pk.Do(func(ctx context.Context) error {
//	    return os.RemoveAll("dist")
//	}))
//
// Example with composition:
//
//	var Build = pk.NewTask("build", "build all assets", pk.Serial(Clean, pk.Parallel(Styles, Scripts)))
func NewTask(name, usage string, body Runnable) *Task {
	return &Task{
		name:  name,
		usage: usage,
		body:  body,
	}
}

// run implements the Runnable interface.
func (t *Task) run(ctx context.Context) error {
	if t.body == nil {
		return fmt.Errorf("task %q has no implementation", t.name)
	}

	tracker := TrackerFromContext(ctx)
	if tracker != nil {
		if alreadyDone := tracker.markDone(t.name); alreadyDone {
			return nil // Silent skip.
		}
		tracker.record(t.name, StateRunning, nil)
	}

	// Print task header before execution.
	Printf(ctx, ":: %s\n", t.name)

	err := t.body.run(ctx)
	if tracker != nil {
		if err != nil {
			tracker.record(t.name, StateFailed, err)
		} else {
			tracker.record(t.name, StateCompleted, nil)
		}
	}
	return err
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.name
}

// Usage returns the task's usage description.
func (t *Task) Usage() string {
	return t.usage
}

// Body returns the runnable executed by the task.
func (t *Task) Body() Runnable {
	return t.body
}

// Hidden returns a new Task that is hidden from CLI listings.
// Hidden tasks can still be executed directly but won't appear in help.
func (t *Task) Hidden() *Task {
	return &Task{
		name:   t.name,
		usage:  t.usage,
		body:   t.body,
		hidden: true,
	}
}

// IsHidden returns whether the task is hidden from CLI listings.
func (t *Task) IsHidden() bool {
	return t.hidden
}
