package pk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fredrikaverpil/themekit/internal/watcher"
)

// fakeSource is a watcher.Source fed by the test.
type fakeSource struct {
	events chan watcher.Event
	errors chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan watcher.Event, 16), errors: make(chan error, 16)}
}

func (f *fakeSource) Events() <-chan watcher.Event { return f.events }
func (f *fakeSource) Errors() <-chan error         { return f.errors }
func (f *fakeSource) Close() error                 { return nil }

func (f *fakeSource) touch(root, rel string) {
	f.events <- watcher.Event{Path: filepath.Join(root, rel), Op: watcher.OpWrite, Timestamp: time.Now()}
}

// span records when one trigger invocation started and ended.
type span struct{ start, end time.Time }

type spanRecorder struct {
	mu    sync.Mutex
	spans []span
}

func (r *spanRecorder) runnable(d time.Duration, err error) Runnable {
	return Do(func(context.Context) error {
		start := time.Now()
		time.Sleep(d)
		r.mu.Lock()
		r.spans = append(r.spans, span{start: start, end: time.Now()})
		r.mu.Unlock()
		return err
	})
}

func (r *spanRecorder) snapshot() []span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]span(nil), r.spans...)
}

// startWatch runs w in the background and returns a stop func that cancels
// it and waits for it to return.
func startWatch(t *testing.T, w Runnable) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(WithOutput(context.Background(), testOutput()))
	done := make(chan error, 1)
	go func() { done <- Execute(ctx, w) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("watch returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("watch did not stop")
		}
	}
}

func waitForSpans(t *testing.T, r *spanRecorder, n int) []span {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if spans := r.snapshot(); len(spans) >= n {
			return spans
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d invocations, got %d", n, len(r.snapshot()))
	return nil
}

func TestWatch_ConcurrentByDefault(t *testing.T) {
	root := t.TempDir()
	src := newFakeSource()
	rec := &spanRecorder{}

	w := Watch(root, []WatchBinding{
		{Patterns: []string{"src/**/*.scss"}, Trigger: rec.runnable(100*time.Millisecond, nil)},
	}, WithEventSource(src))
	stop := startWatch(t, w)
	defer stop()

	src.touch(root, "src/style.scss")
	time.Sleep(10 * time.Millisecond)
	src.touch(root, "src/style.scss")

	spans := waitForSpans(t, rec, 2)
	first, second := spans[0], spans[1]
	if first.start.After(second.start) {
		first, second = second, first
	}
	if !second.start.Before(first.end) {
		t.Errorf("expected overlapping invocations, second started %s after first ended",
			second.start.Sub(first.end))
	}
}

func TestWatch_IgnoresNonMatchingPaths(t *testing.T) {
	root := t.TempDir()
	src := newFakeSource()
	var runs atomic.Int32

	w := Watch(root, []WatchBinding{
		{Patterns: []string{"src/**/*.js", "!src/vendor/**"}, Trigger: Do(func(context.Context) error {
			runs.Add(1)
			return nil
		})},
	}, WithEventSource(src))
	stop := startWatch(t, w)

	src.touch(root, "src/style.scss")
	src.touch(root, "src/vendor/jquery.js")
	src.events <- watcher.Event{Path: filepath.Join(filepath.Dir(root), "elsewhere.js"), Op: watcher.OpWrite}
	src.touch(root, "src/js/main.js")

	time.Sleep(50 * time.Millisecond)
	stop()

	if got := runs.Load(); got != 1 {
		t.Errorf("expected 1 run, got %d", got)
	}
}

func TestWatch_FailureKeepsWatching(t *testing.T) {
	root := t.TempDir()
	src := newFakeSource()
	rec := &spanRecorder{}

	w := Watch(root, []WatchBinding{
		{Patterns: []string{"*.php"}, Trigger: rec.runnable(0, errors.New("boom"))},
	}, WithEventSource(src))
	stop := startWatch(t, w)
	defer stop()

	src.touch(root, "index.php")
	waitForSpans(t, rec, 1)
	src.touch(root, "index.php")
	waitForSpans(t, rec, 2)
}

func TestWatch_QueueSerializesAndCoalesces(t *testing.T) {
	root := t.TempDir()
	src := newFakeSource()
	rec := &spanRecorder{}

	w := Watch(root, []WatchBinding{
		{Patterns: []string{"**/*.js"}, Trigger: rec.runnable(60*time.Millisecond, nil)},
	}, WithEventSource(src), WithQueue())
	stop := startWatch(t, w)

	src.touch(root, "a.js")
	time.Sleep(10 * time.Millisecond)
	src.touch(root, "b.js")
	src.touch(root, "c.js")

	waitForSpans(t, rec, 2)
	time.Sleep(150 * time.Millisecond)
	stop()

	spans := rec.snapshot()
	if len(spans) != 2 {
		t.Fatalf("expected 2 runs (one follow-up for the burst), got %d", len(spans))
	}
	if spans[1].start.Before(spans[0].end) {
		t.Error("expected queued run to start after the first one ended")
	}
}

func TestWatch_BadPattern(t *testing.T) {
	w := Watch(t.TempDir(), []WatchBinding{
		{Patterns: []string{"[unclosed"}, Trigger: Do(func(context.Context) error { return nil })},
	}, WithEventSource(newFakeSource()))

	ctx := WithOutput(context.Background(), testOutput())
	if err := Execute(ctx, w); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestRelativeTo(t *testing.T) {
	root := filepath.FromSlash("/work/theme")
	tests := []struct {
		path string
		want string
	}{
		{filepath.FromSlash("/work/theme/src/a.scss"), "src/a.scss"},
		{filepath.FromSlash("/work/theme"), ""},
		{filepath.FromSlash("/work/other/a.scss"), ""},
	}
	for _, tt := range tests {
		if got := relativeTo(root, tt.path); got != tt.want {
			t.Errorf("relativeTo(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestWatch_WatchDirLimitsWatchedTree(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"theme-development/src", "wp-content/plugins"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	var themeRuns, wpRuns atomic.Int32
	w := Watch(root, []WatchBinding{
		{Patterns: []string{"theme-development/**/*"}, Trigger: Do(func(context.Context) error {
			themeRuns.Add(1)
			return nil
		})},
		{Patterns: []string{"wp-content/**/*"}, Trigger: Do(func(context.Context) error {
			wpRuns.Add(1)
			return nil
		})},
	}, WithWatchDir("theme-development"))
	stop := startWatch(t, w)
	defer stop()

	// The watcher starts asynchronously; write until a change is seen.
	themeFile := filepath.Join(root, "theme-development", "src", "a.scss")
	deadline := time.Now().Add(2 * time.Second)
	for themeRuns.Load() == 0 && time.Now().Before(deadline) {
		if err := os.WriteFile(themeFile, []byte("a{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if themeRuns.Load() == 0 {
		t.Fatal("expected a change below the watch dir to trigger")
	}

	if err := os.WriteFile(filepath.Join(root, "wp-content", "plugins", "p.php"), []byte("<?php"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if n := wpRuns.Load(); n != 0 {
		t.Errorf("expected changes outside the watch dir to be ignored, got %d runs", n)
	}
}
