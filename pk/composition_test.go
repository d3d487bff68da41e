package pk

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerial_RunsInOrder(t *testing.T) {
	var order []int

	s := Serial(
		Do(func(_ context.Context) error { order = append(order, 1); return nil }),
		Do(func(_ context.Context) error { order = append(order, 2); return nil }),
		Do(func(_ context.Context) error { order = append(order, 3); return nil }),
	)

	if err := s.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", order)
	}
}

func TestSerial_StopsOnFirstError(t *testing.T) {
	var ran []int
	errBoom := errors.New("boom")

	s := Serial(
		Do(func(_ context.Context) error { ran = append(ran, 1); return nil }),
		Do(func(_ context.Context) error { ran = append(ran, 2); return errBoom }),
		Do(func(_ context.Context) error { ran = append(ran, 3); return nil }),
	)

	err := s.run(context.Background())
	if !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Errorf("expected [1 2], got %v", ran)
	}
}

func TestSerial_LaterTasksNeverStartAfterFailure(t *testing.T) {
	errBoom := errors.New("boom")
	first := NewTask("first", "", Do(func(_ context.Context) error { return nil }))
	second := NewTask("second", "", Do(func(_ context.Context) error { return errBoom }))
	third := NewTask("third", "", Do(func(_ context.Context) error { return nil }))
	fourth := NewTask("fourth", "", Do(func(_ context.Context) error { return nil }))

	tracker := NewTracker()
	ctx := WithOutput(WithTracker(context.Background(), tracker), testOutput())
	err := Execute(ctx, Serial(first, second, Parallel(third, fourth)))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	started := tracker.Started()
	if strings.Join(started, ",") != "first,second" {
		t.Errorf("expected only first,second to start, got %v", started)
	}
	if got := tracker.State("second"); got != StateFailed {
		t.Errorf("expected second to be failed, got %s", got)
	}
	if got := tracker.State("third"); got != StatePending {
		t.Errorf("expected third to stay pending, got %s", got)
	}
}

func TestSerial_Empty(t *testing.T) {
	s := Serial()
	if err := s.run(context.Background()); err != nil {
		t.Errorf("expected nil for empty serial, got %v", err)
	}
}

func TestParallel_RunsConcurrently(t *testing.T) {
	var running, peak atomic.Int32
	body := func(_ context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	p := Parallel(Do(body), Do(body), Do(body))

	ctx := WithOutput(context.Background(), testOutput())
	if err := p.run(ctx); err != nil {
		t.Fatal(err)
	}

	if got := peak.Load(); got != 3 {
		t.Errorf("expected 3 tasks running at once, got %d", got)
	}
}

func TestParallel_FailedIffAnyChildFailed(t *testing.T) {
	errBoom := errors.New("boom")
	ok := func(d time.Duration) Runnable {
		return Do(func(_ context.Context) error { time.Sleep(d); return nil })
	}
	fail := func(d time.Duration) Runnable {
		return Do(func(_ context.Context) error { time.Sleep(d); return errBoom })
	}

	tests := []struct {
		name     string
		children []Runnable
		wantErr  bool
	}{
		{"all succeed", []Runnable{ok(0), ok(5 * time.Millisecond), ok(time.Millisecond)}, false},
		{"failure finishes first", []Runnable{ok(10 * time.Millisecond), fail(0)}, true},
		{"failure finishes last", []Runnable{ok(0), fail(10 * time.Millisecond)}, true},
		{"all fail", []Runnable{fail(0), fail(time.Millisecond)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithOutput(context.Background(), testOutput())
			err := Parallel(tt.children...).run(ctx)
			if tt.wantErr && !errors.Is(err, errBoom) {
				t.Errorf("expected errBoom, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected success, got %v", err)
			}
		})
	}
}

func TestParallel_FailureDoesNotCancelSiblings(t *testing.T) {
	errBoom := errors.New("boom")
	var wg sync.WaitGroup
	wg.Add(1)
	var siblingErr atomic.Value

	p := Parallel(
		Do(func(_ context.Context) error { return errBoom }),
		Do(func(ctx context.Context) error {
			defer wg.Done()
			time.Sleep(30 * time.Millisecond)
			if err := ctx.Err(); err != nil {
				siblingErr.Store(err)
			}
			return nil
		}),
	)

	ctx := WithOutput(context.Background(), testOutput())
	start := time.Now()
	if err := p.run(ctx); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 30*time.Millisecond {
		t.Errorf("expected group to fail before sibling finished, took %s", elapsed)
	}

	wg.Wait()
	if v := siblingErr.Load(); v != nil {
		t.Errorf("sibling context was cancelled: %v", v)
	}
}

func TestParallel_Empty(t *testing.T) {
	p := Parallel()
	if err := p.run(context.Background()); err != nil {
		t.Errorf("expected nil for empty parallel, got %v", err)
	}
}

func TestParallel_SingleItemNoBuf(t *testing.T) {
	var ran bool
	p := Parallel(
		Do(func(_ context.Context) error {
			ran = true
			return nil
		}),
	)

	if err := p.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("expected single item to run")
	}
}

func TestParallel_OutputBuffering(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := &Output{Stdout: &stdout, Stderr: &stderr}

	p := Parallel(
		Do(func(ctx context.Context) error {
			o := OutputFromContext(ctx)
			for range 50 {
				_, _ = o.Stdout.Write([]byte("A"))
			}
			return nil
		}),
		Do(func(ctx context.Context) error {
			o := OutputFromContext(ctx)
			for range 50 {
				_, _ = o.Stdout.Write([]byte("B"))
			}
			return nil
		}),
	)

	if err := p.run(WithOutput(context.Background(), out)); err != nil {
		t.Fatal(err)
	}

	result := stdout.String()
	if len(result) != 100 {
		t.Fatalf("expected 100 chars, got %d", len(result))
	}

	// Either all A's then all B's, or all B's then all A's.
	trimB := strings.TrimLeft(strings.TrimLeft(result, "A"), "B")
	trimA := strings.TrimLeft(strings.TrimLeft(result, "B"), "A")
	if trimB != "" && trimA != "" {
		t.Errorf("expected contiguous blocks, got interleaved output: %s", result)
	}
}

func TestParallel_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Parallel(
		Do(func(_ context.Context) error {
			t.Error("should not run with cancelled context")
			return nil
		}),
	)

	err := p.run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGroup_Inspectable(t *testing.T) {
	a := NewTask("a", "", Do(func(context.Context) error { return nil }))
	b := NewTask("b", "", Do(func(context.Context) error { return nil }))
	g := Serial(a, Parallel(b))

	if g.Kind() != KindSerial {
		t.Errorf("expected serial, got %s", g.Kind())
	}
	children := g.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	inner, ok := children[1].(*Group)
	if !ok || inner.Kind() != KindParallel {
		t.Errorf("expected nested parallel group, got %T", children[1])
	}
}

// testOutput returns an Output that discards all output.
func testOutput() *Output {
	return &Output{
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	}
}
