package watcher

import (
	"sync"
	"time"
)

// Debounced wraps a Source with per-path event debouncing.
// Rapid changes to the same path are coalesced into one event that fires
// once the path has been quiet for the configured delay.
type Debounced struct {
	inner Source
	delay time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingEvent
	events   chan Event
	errors   chan error
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
	firing   sync.WaitGroup
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// Debounce creates a debounced wrapper around inner.
func Debounce(inner Source, delay time.Duration) *Debounced {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	d := &Debounced{
		inner:   inner,
		delay:   delay,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 100),
		errors:  make(chan error, 100),
		closeCh: make(chan struct{}),
	}

	d.closedWg.Add(1)
	go d.processLoop()

	return d
}

// Events returns the debounced event channel.
func (d *Debounced) Events() <-chan Event {
	return d.events
}

// Errors returns the error channel.
func (d *Debounced) Errors() <-chan error {
	return d.errors
}

// Close stops the debounced source and the source it wraps.
func (d *Debounced) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.closeCh)
	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
	d.mu.Unlock()

	d.closedWg.Wait()
	d.firing.Wait()
	close(d.events)
	close(d.errors)
	return d.inner.Close()
}

// PendingCount returns the number of events waiting for their delay to pass.
func (d *Debounced) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debounced) processLoop() {
	defer d.closedWg.Done()

	for {
		select {
		case <-d.closeCh:
			return

		case event, ok := <-d.inner.Events():
			if !ok {
				return
			}
			d.handleEvent(event)

		case err, ok := <-d.inner.Errors():
			if !ok {
				return
			}
			select {
			case d.errors <- err:
			default:
			}
		}
	}
}

func (d *Debounced) handleEvent(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if p, ok := d.pending[event.Path]; ok {
		p.event.Op |= event.Op
		p.event.Timestamp = event.Timestamp
		p.timer.Reset(d.delay)
		return
	}

	p := &pendingEvent{event: event}
	p.timer = time.AfterFunc(d.delay, func() {
		d.fire(event.Path)
	})
	d.pending[event.Path] = p
}

func (d *Debounced) fire(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if !ok || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	event := p.event
	d.firing.Add(1)
	d.mu.Unlock()
	defer d.firing.Done()

	select {
	case d.events <- event:
	case <-d.closeCh:
	}
}

var _ Source = (*Debounced)(nil)
