package vmap

import "time"

// Clock provides the monotonic millisecond time source used throughout the
// scheduling core. NewSystemClock returns the default implementation.
type Clock interface {
	NowMS() int64
}

// systemClock is the Clock backed by the host's monotonic clock.
type systemClock struct{ start time.Time }

// NewSystemClock returns a Clock backed by time.Since, matching the
// monotonic-millisecond contract required by §6.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowMS() int64 {
	return time.Since(c.start).Milliseconds()
}

// IntervalTimer mirrors the update(diff)/passed() timer semantics used by
// the tick driver and the load balancer's balance window, grounded on the
// original Timer class: Update accumulates elapsed milliseconds, Passed
// reports whether the configured interval has elapsed, and SetCurrent resets
// the accumulator (optionally carrying remainder forward).
type IntervalTimer struct {
	interval int64
	current  int64
}

// NewIntervalTimer returns a timer that fires once every intervalMS
// milliseconds of accumulated Update calls.
func NewIntervalTimer(intervalMS int64) *IntervalTimer {
	return &IntervalTimer{interval: intervalMS}
}

// Update advances the timer's internal accumulator by diffMS.
func (t *IntervalTimer) Update(diffMS int64) {
	t.current += diffMS
}

// Passed reports whether the configured interval has elapsed.
func (t *IntervalTimer) Passed() bool {
	return t.current >= t.interval
}

// Current returns the accumulated time since the timer last fired.
func (t *IntervalTimer) Current() int64 {
	return t.current
}

// SetCurrent resets the accumulator to v, typically 0 after the timer fires.
func (t *IntervalTimer) SetCurrent(v int64) {
	t.current = v
}

// SetInterval changes the configured interval, used when configuration is
// reloaded at runtime.
func (t *IntervalTimer) SetInterval(intervalMS int64) {
	t.interval = intervalMS
}
