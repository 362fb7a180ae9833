package generate

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"imagegen/internal/models"
	"imagegen/internal/provider"
	"imagegen/internal/ratelimit"
)

// ServiceError represents errors from the generate service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// RetryAfterSeconds returns the wait hint in whole seconds.
func (e *ServiceError) RetryAfterSeconds() int {
	return int(e.RetryAfter / time.Second)
}

// Error constructors for common service errors

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewValidationError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewImageNotFoundError(name string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeImageNotFound,
		Message:    fmt.Sprintf("image '%s' not found", name),
		StatusCode: http.StatusNotFound,
	}
}

func NewStorageError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeStorageError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRateLimitedError reports a full outbound window.
func NewRateLimitedError(err *ratelimit.ExceededError) *ServiceError {
	return &ServiceError{
		Code: models.ErrorCodeRateLimited,
		Message: fmt.Sprintf("rate limit reached: at most %d images per minute, try again in %d seconds",
			err.Limit, err.RetryAfterSeconds()),
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: err.RetryAfter,
		Err:        err,
	}
}

// NewProviderError maps a provider failure onto an HTTP status. Upstream
// problems are gateway errors; a request the provider rejected is the
// caller's.
func NewProviderError(err error) *ServiceError {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		return &ServiceError{
			Code:       models.ErrorCodeProviderError,
			Message:    "image generation failed",
			StatusCode: http.StatusBadGateway,
			Err:        err,
		}
	}

	se := &ServiceError{Message: pe.Message, Err: err}
	switch pe.Kind {
	case provider.KindUnconfigured:
		se.Code = models.ErrorCodeServiceUnavailable
		se.StatusCode = http.StatusServiceUnavailable
	case provider.KindUnauthorized:
		se.Code = models.ErrorCodeProviderUnauthorized
		se.StatusCode = http.StatusBadGateway
	case provider.KindRateLimited:
		se.Code = models.ErrorCodeProviderRateLimited
		se.StatusCode = http.StatusServiceUnavailable
	case provider.KindInvalidRequest:
		se.Code = models.ErrorCodeInvalidRequest
		se.StatusCode = http.StatusBadRequest
	default:
		se.Code = models.ErrorCodeProviderError
		se.StatusCode = http.StatusBadGateway
	}
	if se.Message == "" {
		se.Message = "image generation failed"
	}
	return se
}
