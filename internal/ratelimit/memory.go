package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"imagegen/internal/clock"
)

// entry holds a client's token bucket and its last access time for cleanup.
type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-client token bucket limiter backed by
// golang.org/x/time/rate. It keeps one bucket per key and a background
// goroutine evicts buckets idle for more than twice the cleanup interval.
type MemoryLimiter struct {
	rate            rate.Limit
	burst           int
	limit           int // requests per minute, for Info.Limit
	cleanupInterval time.Duration
	clock           clock.Clock

	mu      sync.Mutex
	entries map[string]*entry
	done    chan struct{}
	closed  bool
}

// NewMemoryLimiter creates a limiter with the given requests-per-minute rate
// and burst size. A non-positive rate admits only the initial burst.
func NewMemoryLimiter(requestsPerMinute int, burst int, cleanupInterval time.Duration, clk clock.Clock) *MemoryLimiter {
	var limit rate.Limit
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.System{}
	}

	m := &MemoryLimiter{
		rate:            limit,
		burst:           burst,
		limit:           requestsPerMinute,
		cleanupInterval: cleanupInterval,
		clock:           clk,
		entries:         make(map[string]*entry),
		done:            make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow checks whether a request from the given key should be allowed.
func (m *MemoryLimiter) Allow(key string) (bool, Info) {
	now := m.clock.Now()

	m.mu.Lock()
	e, exists := m.entries[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.entries[key] = e
	}
	e.lastSeen = now
	m.mu.Unlock()

	allowed := e.limiter.AllowN(now, 1)

	tokens := e.limiter.TokensAt(now)
	info := Info{
		Limit:     m.limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}

	if missing := float64(m.burst) - tokens; missing > 0 && m.rate > 0 {
		info.ResetAt = now.Add(time.Duration(missing / float64(m.rate) * float64(time.Second)))
	}

	if !allowed {
		info.RetryAfter = m.retryAfter(e.limiter, now)
	}

	return allowed, info
}

// retryAfter reports how long until the bucket admits one more request.
// A bucket that never refills reports a minute so clients back off.
func (m *MemoryLimiter) retryAfter(l *rate.Limiter, now time.Time) time.Duration {
	if m.rate <= 0 {
		return time.Minute
	}
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return time.Minute
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	if delay == rate.InfDuration {
		return time.Minute
	}
	return delay
}

// Close stops the background cleanup goroutine.
func (m *MemoryLimiter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

// evictStale removes buckets idle for more than 2x the cleanup interval.
func (m *MemoryLimiter) evictStale() {
	cutoff := m.clock.Now().Add(-2 * m.cleanupInterval)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			delete(m.entries, key)
		}
	}
}
