package pk

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fredrikaverpil/themekit/internal/glob"
	"github.com/fredrikaverpil/themekit/internal/watcher"
)

// WatchBinding re-runs Trigger whenever a file matching Patterns changes.
// Patterns are relative to the watched root; "!" patterns exclude.
type WatchBinding struct {
	Patterns []string
	Trigger  Runnable
}

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	queue    bool
	source   watcher.Source
	dir      string
}

// WithDebounce coalesces rapid changes to the same file: a trigger fires
// only after the file has been quiet for d.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		c.debounce = d
	}
}

// WithQueue runs at most one invocation per binding at a time. Changes
// arriving while it runs schedule a single follow-up invocation.
func WithQueue() WatchOption {
	return func(c *watchConfig) {
		c.queue = true
	}
}

// WithWatchDir limits the filesystem watcher to dir, relative to the root.
// Binding patterns stay relative to the root.
func WithWatchDir(dir string) WatchOption {
	return func(c *watchConfig) {
		c.dir = dir
	}
}

// WithEventSource replaces the filesystem watcher with src.
func WithEventSource(src watcher.Source) WatchOption {
	return func(c *watchConfig) {
		c.source = src
	}
}

// Watch returns a Runnable that watches root until the context is cancelled.
//
// By default every matching change starts a fresh, independent execution of
// the binding's trigger, even when an earlier one is still running; nothing is
// deduplicated, queued or cancelled. Use WithDebounce or WithQueue to opt in
// to calmer behavior.
func Watch(root string, bindings []WatchBinding, opts ...WatchOption) Runnable {
	cfg := watchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &watchRunnable{root: root, bindings: bindings, cfg: cfg}
}

type watchRunnable struct {
	root     string
	bindings []WatchBinding
	cfg      watchConfig
	flushMu  sync.Mutex
}

// boundTrigger is a binding compiled for matching.
type boundTrigger struct {
	set     *glob.Set
	trigger Runnable
	label   string

	// Queue policy state.
	mu      sync.Mutex
	running bool
	again   bool
}

func (w *watchRunnable) run(ctx context.Context) error {
	bound := make([]*boundTrigger, 0, len(w.bindings))
	for _, b := range w.bindings {
		set, err := glob.New(b.Patterns...)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		bound = append(bound, &boundTrigger{set: set, trigger: b.Trigger, label: triggerLabel(b.Trigger)})
	}

	dir := w.root
	if w.cfg.dir != "" {
		dir = filepath.Join(w.root, filepath.FromSlash(w.cfg.dir))
	}
	src := w.cfg.source
	if src == nil {
		fsw, err := watcher.NewFSNotify(dir)
		if err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		src = fsw
	}
	if w.cfg.debounce > 0 {
		src = watcher.Debounce(src, w.cfg.debounce)
	}
	defer src.Close()

	absRoot, err := filepath.Abs(w.root)
	if err != nil {
		return err
	}

	Printf(ctx, "watching %s\n", dir)

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-src.Errors():
			if !ok {
				return nil
			}
			Errorf(ctx, "watch: %v\n", err)

		case ev, ok := <-src.Events():
			if !ok {
				return nil
			}
			rel := relativeTo(absRoot, ev.Path)
			if rel == "" {
				continue
			}
			for _, b := range bound {
				if !b.set.Match(rel) {
					continue
				}
				if w.cfg.queue {
					w.enqueue(ctx, &inflight, b, rel)
				} else {
					inflight.Add(1)
					go func() {
						defer inflight.Done()
						w.fire(ctx, b, rel)
					}()
				}
			}
		}
	}
}

// enqueue starts b unless it is already running, in which case one
// follow-up run is scheduled.
func (w *watchRunnable) enqueue(ctx context.Context, inflight *sync.WaitGroup, b *boundTrigger, rel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.again = true
		return
	}
	b.running = true
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		for {
			w.fire(ctx, b, rel)
			b.mu.Lock()
			if !b.again || ctx.Err() != nil {
				b.running = false
				b.again = false
				b.mu.Unlock()
				return
			}
			b.again = false
			b.mu.Unlock()
		}
	}()
}

// fire runs one fresh execution of the trigger. Output is buffered and
// flushed when the invocation ends so overlapping runs stay readable.
func (w *watchRunnable) fire(ctx context.Context, b *boundTrigger, rel string) {
	buf := newBufferedOutput(OutputFromContext(ctx))
	runCtx := WithOutput(WithTracker(ctx, NewTracker()), buf.Output())

	Printf(runCtx, "changed %s -> %s\n", rel, b.label)
	if err := Execute(runCtx, b.trigger); err != nil {
		Errorf(runCtx, "watch: %s: %v\n", b.label, err)
	}
	w.flushMu.Lock()
	buf.Flush()
	w.flushMu.Unlock()
}

// relativeTo returns p relative to root with forward slashes, or "" when p
// lies outside root.
func relativeTo(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return ""
	}
	return rel
}

func triggerLabel(r Runnable) string {
	var names []string
	for _, t := range Tasks(r) {
		names = append(names, t.Name())
	}
	if len(names) == 0 {
		return "func"
	}
	return strings.Join(names, ", ")
}
