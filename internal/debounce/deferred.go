package debounce

import (
	"sync"
	"time"
)

// Deferred is a one-shot delayed task that can be canceled before it runs.
type Deferred struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

// After schedules fn to run once after delay
func After(delay time.Duration, fn func()) *Deferred {
	d := &Deferred{}
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.done {
			d.mu.Unlock()
			return
		}
		d.done = true
		d.mu.Unlock()
		fn()
	})
	return d
}

// Stop cancels the task if it has not fired yet
func (d *Deferred) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.done = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
