package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrLimitExceeded matches any *ExceededError via errors.Is.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// ExceededError is returned when the window is full. RetryAfter is whole
// seconds and never negative.
type ExceededError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: please wait %d seconds before trying again", e.RetryAfterSeconds())
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// RetryAfterSeconds returns the wait hint as an integer number of seconds.
func (e *ExceededError) RetryAfterSeconds() int {
	return int(e.RetryAfter / time.Second)
}

// ceilSeconds rounds d up to a whole number of seconds, clamping at zero.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}
