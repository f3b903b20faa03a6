package session

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of scheduled work into a single run
// after an idle window. Schedule replaces any pending function, Flush
// runs it immediately, Cancel drops it. The pending function is never
// lost to a state transition: callers flush on pause, end, and
// teardown.
type debouncer struct {
	clock Clock
	delay time.Duration

	mu      sync.Mutex
	timer   Timer
	pending func()
}

func newDebouncer(clock Clock, delay time.Duration) *debouncer {
	return &debouncer{clock: clock, delay: delay}
}

// Schedule queues fn to run after the idle window, replacing any
// previously queued function and restarting the window.
func (d *debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = fn
	d.timer = d.clock.AfterFunc(d.delay, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Flush runs the pending function now, if any, and clears the timer.
func (d *debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Cancel drops the pending function without running it.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}
