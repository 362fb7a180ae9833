// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Machine-readable error codes that separate local throttling, provider
//   failures, and storage failures, since each needs a different remedy
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// GenerateResponse describes a newly stored image.
type GenerateResponse struct {
	ID        string    `json:"id"`         // History record ID
	Name      string    `json:"name"`       // Artifact file name
	URL       string    `json:"url"`        // Download location on this server
	Prompt    string    `json:"prompt"`     // Prompt as sent to the provider
	Model     string    `json:"model"`      // Model used
	Width     int       `json:"width"`      // Requested width
	Height    int       `json:"height"`     // Requested height
	SizeBytes int64     `json:"size_bytes"` // Stored file size
	CreatedAt time.Time `json:"created_at"` // When the image was stored
}

// GalleryResponse lists retained images, newest first.
type GalleryResponse struct {
	Images     []ImageInfo `json:"images"`
	TotalCount int         `json:"total_count"`
}

type ImageInfo struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type GenerationsResponse struct {
	Generations []*Generation `json:"generations"`
	TotalCount  int           `json:"total_count"`
}

// QuotaResponse reports the outbound provider window.
type QuotaResponse struct {
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	WindowSeconds     int       `json:"window_seconds"`
	ResetAt           time.Time `json:"reset_at"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}

// ErrorResponse provides structured error information.
//
// Error Categories:
// - Validation errors: Input format/constraint violations
// - Rate limiting: local window full (RetryAfterSeconds set)
// - Provider errors: upstream rejected or failed the request
// - Storage errors: the image could not be persisted
type ErrorResponse struct {
	Error             string            `json:"error"`                         // Error type (always "error")
	Message           string            `json:"message"`                       // Human-readable error description
	Code              string            `json:"code,omitempty"`                // Machine-readable error code
	Details           map[string]string `json:"details,omitempty"`             // Field-specific error details
	RetryAfterSeconds int               `json:"retry_after_seconds,omitempty"` // Wait hint for throttled requests
	Timestamp         time.Time         `json:"timestamp"`                     // Error occurrence time
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound             = "NOT_FOUND"             // 404: Resource doesn't exist
	ErrorCodeImageNotFound        = "IMAGE_NOT_FOUND"       // 404: Artifact doesn't exist
	ErrorCodeBadRequest           = "BAD_REQUEST"           // 400: Invalid request format
	ErrorCodeInvalidRequest       = "INVALID_REQUEST"       // 400: Invalid request data
	ErrorCodeValidation           = "VALIDATION_ERROR"      // 422: Input validation failed
	ErrorCodeInternalError        = "INTERNAL_ERROR"        // 500: Server-side error
	ErrorCodeServiceUnavailable   = "SERVICE_UNAVAILABLE"   // 503: Service temporarily down
	ErrorCodeTooManyRequests      = "TOO_MANY_REQUESTS"     // 429: Client exceeded the API limit
	ErrorCodeRateLimited          = "RATE_LIMITED"          // 429: Provider window full, wait and retry
	ErrorCodeProviderUnauthorized = "PROVIDER_UNAUTHORIZED" // 502: Provider rejected the API key
	ErrorCodeProviderRateLimited  = "PROVIDER_RATE_LIMITED" // 503: Provider throttled us
	ErrorCodeProviderError        = "PROVIDER_ERROR"        // 502: Provider failed or answered garbage
	ErrorCodeStorageError         = "STORAGE_ERROR"         // 500: Image could not be saved
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}

// FromGeneration fills the response from a stored generation.
func (r *GenerateResponse) FromGeneration(g *Generation, url string) {
	r.ID = g.ID
	r.Name = g.ArtifactName
	r.URL = url
	r.Prompt = g.Prompt
	r.Model = g.Model
	r.Width = g.Width
	r.Height = g.Height
	r.SizeBytes = g.SizeBytes
	r.CreatedAt = g.CreatedAt
}
