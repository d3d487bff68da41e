// Package watcher turns filesystem notifications into a stream of change
// events for the watch task.
//
// The fsnotify backend watches a directory tree recursively and picks up new
// directories as they appear. Debounce wraps any Source and coalesces rapid
// changes to the same path.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Op represents the type of filesystem operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a single filesystem change.
type Event struct {
	// Path is the absolute path of the affected file or directory.
	Path      string
	Op        Op
	Timestamp time.Time
}

// Source delivers change events until closed.
type Source interface {
	// Events returns the channel of change events.
	// The channel is closed when the source is closed.
	Events() <-chan Event

	// Errors returns the channel of watcher errors.
	// The channel is closed when the source is closed.
	Errors() <-chan error

	// Close stops the source and releases resources.
	Close() error
}
