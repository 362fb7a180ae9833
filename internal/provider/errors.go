package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindUnconfigured   Kind = "unconfigured"    // no API key available
	KindUnauthorized   Kind = "unauthorized"    // upstream 401
	KindRateLimited    Kind = "rate_limited"    // upstream 429
	KindInvalidRequest Kind = "invalid_request" // upstream 400
	KindUpstream       Kind = "upstream"        // any other non-2xx status
	KindTransport      Kind = "transport"       // request never completed
	KindBadResponse    Kind = "bad_response"    // 2xx without a usable image
)

// ErrNotConfigured is returned by Generate when no API key is set.
var ErrNotConfigured = &Error{Kind: KindUnconfigured, Message: "provider API key is not configured"}

// Error is a failed provider call. StatusCode is zero when no HTTP response
// was received.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of a provider error, or "" for other errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
