package common

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid calls on the same key into a single callback.
// Each Call resets the timer for that key. When the timer fires, fn runs.
type Debouncer struct {
	delay  time.Duration
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, timers: make(map[string]*time.Timer)}
}

// Call schedules fn to run after delay. If called again with the same key
// before the delay expires, the timer resets.
func (d *Debouncer) Call(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := d.timers[key] == timer
		if current {
			delete(d.timers, key)
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
	d.timers[key] = timer
}

// Pending reports whether a callback is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Stop drops every pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
