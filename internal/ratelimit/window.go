package ratelimit

import (
	"sync"
	"time"

	"imagegen/internal/clock"
)

// DefaultWindow is the rolling period over which requests are counted.
const DefaultWindow = time.Minute

// DefaultCapacity is the number of requests allowed per DefaultWindow.
const DefaultCapacity = 6

// Window is a sliding-window limiter over a single request stream. It keeps the
// timestamps of admitted requests oldest-first and never holds more than
// capacity of them. A timestamp t stays in the window while now < t+period;
// at exactly t+period it has expired.
type Window struct {
	capacity int
	period   time.Duration
	clock    clock.Clock

	mu     sync.Mutex
	stamps []time.Time
}

// NewWindow creates a limiter admitting capacity requests per period. A
// negative capacity is treated as zero, which rejects everything. A nil clock
// falls back to the system clock.
func NewWindow(capacity int, period time.Duration, clk clock.Clock) *Window {
	if capacity < 0 {
		capacity = 0
	}
	if period <= 0 {
		period = DefaultWindow
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Window{
		capacity: capacity,
		period:   period,
		clock:    clk,
		stamps:   make([]time.Time, 0, capacity),
	}
}

// CheckAndRecord admits the request and records its timestamp, or returns an
// *ExceededError carrying the time until the oldest entry leaves the window.
// Rejected attempts are not recorded.
func (w *Window) CheckAndRecord() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.purge(now)

	if len(w.stamps) < w.capacity {
		w.stamps = append(w.stamps, now)
		return nil
	}

	return &ExceededError{
		Limit:      w.capacity,
		RetryAfter: w.retryAfter(now),
	}
}

// Status reports the current window occupancy without recording anything.
func (w *Window) Status() Info {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.purge(now)

	info := Info{
		Limit:     w.capacity,
		Remaining: w.capacity - len(w.stamps),
		ResetAt:   now,
	}
	if n := len(w.stamps); n > 0 {
		info.ResetAt = w.stamps[n-1].Add(w.period)
	}
	if info.Remaining <= 0 {
		info.Remaining = 0
		info.RetryAfter = w.retryAfter(now)
	}
	return info
}

// Snapshot returns a copy of the live timestamps, oldest first.
func (w *Window) Snapshot() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(w.clock.Now())
	out := make([]time.Time, len(w.stamps))
	copy(out, w.stamps)
	return out
}

// Capacity returns the maximum number of requests per period.
func (w *Window) Capacity() int {
	return w.capacity
}

// Period returns the rolling window length.
func (w *Window) Period() time.Duration {
	return w.period
}

// purge drops the expired prefix. Caller holds mu.
func (w *Window) purge(now time.Time) {
	i := 0
	for i < len(w.stamps) && !now.Before(w.stamps[i].Add(w.period)) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// retryAfter computes the wait until a slot frees up. Caller holds mu.
func (w *Window) retryAfter(now time.Time) time.Duration {
	if len(w.stamps) == 0 {
		// Zero capacity: no entry will ever free a slot.
		return w.period
	}
	return ceilSeconds(w.stamps[0].Add(w.period).Sub(now))
}
