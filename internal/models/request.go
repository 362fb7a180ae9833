// Package models - API request types and input validation.
// This file defines the incoming request structures for image generation.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Fill unset parameters from configured defaults before validating
// - Mirror the provider's accepted ranges so bad requests never cost a slot
//   in the outbound rate limit window
package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Generation parameter bounds accepted by the provider.
const (
	MinDimension  = 512
	MaxDimension  = 1024
	DimensionStep = 64
	MinSteps      = 1
	MaxSteps      = 50
	MinSeed       = -1 // -1 lets the provider pick a random seed
	MaxSeed       = 2147483647
	MaxPromptLen  = 4000

	DefaultListLimit = 50
	MaxListLimit     = 500
)

// GenerateRequest carries a prompt and generation parameters.
//
// Zero values mean "use the configured default": Model "", Width 0, Height 0,
// Steps 0, and a nil Seed are all filled by ApplyDefaults. A nil Seed stays
// nil when the default seed is random, so no seed reaches the provider.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`                    // Text description of the image
	NegativePrompt string `json:"negative_prompt,omitempty"` // What to avoid in the image
	Model          string `json:"model,omitempty"`           // Provider model identifier
	Width          int    `json:"width,omitempty"`           // Pixels, multiple of 64
	Height         int    `json:"height,omitempty"`          // Pixels, multiple of 64
	Steps          int    `json:"steps,omitempty"`           // Diffusion steps
	Seed           *int64 `json:"seed,omitempty"`            // Reproducibility seed, -1 for random
}

// ApplyDefaults fills unset fields from d and trims free-text fields.
func (r *GenerateRequest) ApplyDefaults(d GenerationDefaults) {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	r.Model = strings.TrimSpace(r.Model)

	if r.Model == "" {
		r.Model = d.Model
	}
	if r.Width == 0 {
		r.Width = d.Width
	}
	if r.Height == 0 {
		r.Height = d.Height
	}
	if r.Steps == 0 {
		r.Steps = d.Steps
	}
	if r.Seed == nil && d.Seed != MinSeed {
		seed := d.Seed
		r.Seed = &seed
	}
}

func (r *GenerateRequest) Validate() error {
	if r.Prompt == "" {
		return errors.New("prompt is required")
	}
	if utf8.RuneCountInString(r.Prompt) > MaxPromptLen {
		return fmt.Errorf("prompt cannot exceed %d characters", MaxPromptLen)
	}
	if utf8.RuneCountInString(r.NegativePrompt) > MaxPromptLen {
		return fmt.Errorf("negative_prompt cannot exceed %d characters", MaxPromptLen)
	}
	if r.Model == "" {
		return errors.New("model is required")
	}
	if err := validateDimension("width", r.Width); err != nil {
		return err
	}
	if err := validateDimension("height", r.Height); err != nil {
		return err
	}
	if r.Steps < MinSteps || r.Steps > MaxSteps {
		return fmt.Errorf("steps must be between %d and %d", MinSteps, MaxSteps)
	}
	if r.Seed != nil && (*r.Seed < MinSeed || *r.Seed > MaxSeed) {
		return fmt.Errorf("seed must be between %d and %d", MinSeed, MaxSeed)
	}
	return nil
}

func validateDimension(field string, v int) error {
	if v < MinDimension || v > MaxDimension {
		return fmt.Errorf("%s must be between %d and %d", field, MinDimension, MaxDimension)
	}
	if v%DimensionStep != 0 {
		return fmt.Errorf("%s must be a multiple of %d", field, DimensionStep)
	}
	return nil
}

// ListGenerationsRequest selects recent history entries.
type ListGenerationsRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Status string `json:"status,omitempty"`
}

func (r *ListGenerationsRequest) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	if r.Limit == 0 {
		r.Limit = DefaultListLimit
	}
}

func (r *ListGenerationsRequest) Validate() error {
	if r.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if r.Limit > MaxListLimit {
		return fmt.Errorf("limit cannot exceed %d", MaxListLimit)
	}
	if r.Status != "" && !IsValidGenerationStatus(r.Status) {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	return nil
}
