package devserver

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of events for the same path. A path fires once
// its events have been quiet for the window, or once maxDelay has passed
// since the first event of the burst, whichever comes first.
type Debouncer struct {
	window   time.Duration
	maxDelay time.Duration
	fire     func(path string)

	mu      sync.Mutex
	pending map[string]*burst
	closed  bool
}

type burst struct {
	first time.Time
	timer *time.Timer
}

// NewDebouncer returns a Debouncer calling fire from a timer goroutine.
func NewDebouncer(window, maxDelay time.Duration, fire func(path string)) *Debouncer {
	if maxDelay < window {
		maxDelay = window
	}
	return &Debouncer{window: window, maxDelay: maxDelay, fire: fire, pending: map[string]*burst{}}
}

// Trigger records an event for path.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	now := time.Now()
	b, ok := d.pending[path]
	if !ok {
		b = &burst{first: now}
		b.timer = time.AfterFunc(d.window, func() { d.flush(path, b) })
		d.pending[path] = b
		return
	}
	wait := d.window
	if rest := d.maxDelay - now.Sub(b.first); rest < wait {
		wait = max(rest, 0)
	}
	b.timer.Reset(wait)
}

func (d *Debouncer) flush(path string, b *burst) {
	d.mu.Lock()
	if d.closed || d.pending[path] != b {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()
	d.fire(path)
}

// Pending returns the number of paths waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop discards pending events. Trigger is a no-op afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for p, b := range d.pending {
		b.timer.Stop()
		delete(d.pending, p)
	}
}
