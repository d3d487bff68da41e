package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultIgnoreDirs are directory names never descended into.
var DefaultIgnoreDirs = []string{".git", "node_modules", "vendor"}

// FSNotify implements Source using fsnotify.
type FSNotify struct {
	mu sync.Mutex

	watcher    *fsnotify.Watcher
	ignoreDirs []string
	paths      map[string]bool

	events chan Event
	errors chan error

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// Option configures an FSNotify watcher.
type Option func(*FSNotify)

// WithIgnoreDirs replaces the directory names skipped during recursive watches.
func WithIgnoreDirs(names ...string) Option {
	return func(w *FSNotify) {
		w.ignoreDirs = names
	}
}

// NewFSNotify creates a watcher for root and all of its subdirectories.
func NewFSNotify(root string, opts ...Option) (*FSNotify, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FSNotify{
		watcher:    fsw,
		ignoreDirs: DefaultIgnoreDirs,
		paths:      make(map[string]bool),
		events:     make(chan Event, 100),
		errors:     make(chan error, 100),
		closeCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.watchRecursive(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Events returns the event channel.
func (w *FSNotify) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel.
func (w *FSNotify) Errors() <-chan error {
	return w.errors
}

// Dirs returns the watched directories, sorted.
func (w *FSNotify) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.paths))
	for p := range w.paths {
		dirs = append(dirs, p)
	}
	slices.Sort(dirs)
	return dirs
}

// Close stops the watcher.
func (w *FSNotify) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	close(w.events)
	close(w.errors)
	return w.watcher.Close()
}

func (w *FSNotify) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries, keep walking.
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && slices.Contains(w.ignoreDirs, d.Name()) {
			return filepath.SkipDir
		}
		return w.watch(p)
	})
}

func (w *FSNotify) watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.paths[dir] = true
	return nil
}

func (w *FSNotify) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case fsEvent, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(fsEvent)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *FSNotify) handle(fsEvent fsnotify.Event) {
	op := convertOp(fsEvent.Op)
	if op == 0 || op == OpChmod {
		return
	}

	// New directories are watched as they appear.
	if op.Has(OpCreate) {
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			if !slices.Contains(w.ignoreDirs, info.Name()) {
				if err := w.watchRecursive(fsEvent.Name); err != nil {
					w.sendError(err)
				}
			}
			return
		}
	}

	select {
	case w.events <- Event{Path: fsEvent.Name, Op: op, Timestamp: time.Now()}:
	case <-w.closeCh:
	}
}

func (w *FSNotify) sendError(err error) {
	select {
	case w.errors <- err:
	default:
		// Channel full, drop error.
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

var _ Source = (*FSNotify)(nil)
