package models

import (
	"time"
)

// Generation statuses recorded in the history store.
const (
	GenerationSucceeded     = "succeeded"
	GenerationRateLimited   = "rate_limited"
	GenerationProviderError = "provider_error"
	GenerationStorageError  = "storage_error"
)

// Generation is one attempt to produce an image, successful or not. The
// artifact directory stays the source of truth for what images exist;
// ArtifactName may point at a file the retention sweep has since removed.
type Generation struct {
	ID             string    `json:"id"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	Model          string    `json:"model"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Steps          int       `json:"steps"`
	Seed           *int64    `json:"seed,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	ArtifactName   string    `json:"artifact_name,omitempty"`
	SizeBytes      int64     `json:"size_bytes,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewGeneration starts a history record from a normalized request.
func NewGeneration(id string, req *GenerateRequest, createdAt time.Time) *Generation {
	return &Generation{
		ID:             id,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		Seed:           req.Seed,
		CreatedAt:      createdAt,
	}
}

// Succeeded reports whether the attempt produced a stored image.
func (g *Generation) Succeeded() bool {
	return g.Status == GenerationSucceeded
}

func IsValidGenerationStatus(status string) bool {
	switch status {
	case GenerationSucceeded, GenerationRateLimited, GenerationProviderError, GenerationStorageError:
		return true
	}
	return false
}
