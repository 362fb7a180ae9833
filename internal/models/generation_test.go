package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewGeneration(t *testing.T) {
	req := validGenerateRequest()
	req.NegativePrompt = "text"
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	g := NewGeneration("gen-1", &req, createdAt)

	assert.Equal(t, "gen-1", g.ID)
	assert.Equal(t, req.Prompt, g.Prompt)
	assert.Equal(t, "text", g.NegativePrompt)
	assert.Equal(t, req.Model, g.Model)
	assert.Equal(t, 576, g.Width)
	assert.Equal(t, 1024, g.Height)
	assert.Equal(t, 4, g.Steps)
	assert.Equal(t, int64(42), *g.Seed)
	assert.Equal(t, createdAt, g.CreatedAt)
	assert.Empty(t, g.Status)
	assert.False(t, g.Succeeded())

	g.Status = GenerationSucceeded
	assert.True(t, g.Succeeded())
}

func TestIsValidGenerationStatus(t *testing.T) {
	for _, s := range []string{GenerationSucceeded, GenerationRateLimited, GenerationProviderError, GenerationStorageError} {
		assert.True(t, IsValidGenerationStatus(s), s)
	}
	assert.False(t, IsValidGenerationStatus(""))
	assert.False(t, IsValidGenerationStatus("SUCCEEDED"))
}
