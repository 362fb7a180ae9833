// Package ratelimit throttles image generation traffic. Window is the
// sliding-window limiter guarding calls to the upstream provider; MemoryLimiter
// and Middleware protect the HTTP API from individual clients flooding it.
package ratelimit

import "time"

// Limiter is a keyed limiter. Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow checks whether a request identified by key should be allowed.
	// Returns whether the request is allowed and rate information for
	// populating response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Requests left before throttling
	ResetAt    time.Time     // When capacity is fully restored
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}
