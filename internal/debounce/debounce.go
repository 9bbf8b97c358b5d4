package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces a burst of activity into a single start signal and a
// single idle signal. Touch reports whether a new burst began; onIdle fires
// once after the configured inactivity window with no further touches.
type Debouncer struct {
	idle   time.Duration
	onIdle func()

	mu      sync.Mutex
	timer   *time.Timer
	active  bool
	stopped bool
}

func New(idle time.Duration, onIdle func()) *Debouncer {
	return &Debouncer{
		idle:   idle,
		onIdle: onIdle,
	}
}

// Touch records activity and re-arms the inactivity timer. It returns true
// only for the first touch of a burst.
func (d *Debouncer) Touch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	started := !d.active
	d.active = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, d.fire)

	return started
}

// Flush ends the current burst immediately, firing onIdle if one was
// active. It returns whether a burst was ended.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.active {
		d.mu.Unlock()
		return false
	}
	d.active = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.onIdle()
	return true
}

// Stop cancels any pending idle signal without firing it. The debouncer is
// unusable afterwards; stale callbacks must not outlive their session.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.active = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	d.onIdle()
}
