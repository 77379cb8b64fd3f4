package realtime

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into one call. The call runs
// interval after the last trigger, but never later than maxWait after the
// first trigger of the burst.
type Debouncer struct {
	interval time.Duration
	maxWait  time.Duration
	fn       func(reasons []string)

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64
	burstStart time.Time
	reasons    []string
	stopped    bool
}

// NewDebouncer creates a Debouncer. maxWait below interval is raised to interval.
func NewDebouncer(interval, maxWait time.Duration, fn func(reasons []string)) *Debouncer {
	if maxWait < interval {
		maxWait = interval
	}
	return &Debouncer{
		interval: interval,
		maxWait:  maxWait,
		fn:       fn,
	}
}

// Trigger schedules a call, extending the pending one
func (d *Debouncer) Trigger(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := time.Now()
	if d.timer == nil {
		d.burstStart = now
	} else {
		d.timer.Stop()
	}
	d.addReason(reason)

	delay := d.interval
	if deadline := d.burstStart.Add(d.maxWait); now.Add(delay).After(deadline) {
		delay = deadline.Sub(now)
		if delay < 0 {
			delay = 0
		}
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

// Pending reports whether a call is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs a pending call now, on the caller's goroutine
func (d *Debouncer) Flush() {
	d.mu.Lock()
	reasons := d.take()
	d.mu.Unlock()
	if len(reasons) > 0 {
		d.fn(reasons)
	}
}

// Stop drops any pending call; later triggers are ignored
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.take()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.stopped {
		d.mu.Unlock()
		return
	}
	reasons := d.take()
	d.mu.Unlock()
	if len(reasons) > 0 {
		d.fn(reasons)
	}
}

// take clears the pending state; d.mu must be held
func (d *Debouncer) take() []string {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	reasons := d.reasons
	d.reasons = nil
	return reasons
}

func (d *Debouncer) addReason(reason string) {
	for _, r := range d.reasons {
		if r == reason {
			return
		}
	}
	d.reasons = append(d.reasons, reason)
}
