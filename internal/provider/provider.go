// Package provider talks to the remote image generation API.
package provider

import (
	"context"

	"imagegen/internal/models"
)

// Provider turns a validated request into image bytes.
type Provider interface {
	// Generate calls the upstream API once. It never retries.
	Generate(ctx context.Context, req *models.GenerateRequest) (*Image, error)

	// Name identifies the provider in logs and metrics.
	Name() string

	// Configured reports whether credentials are available.
	Configured() bool
}

// Image is a generated image, always PNG encoded.
type Image struct {
	Data         []byte
	SourceFormat string // format returned upstream: "png" or "jpeg"
	Width        int
	Height       int
	Model        string
}
