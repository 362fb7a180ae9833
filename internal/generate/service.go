// Package generate coordinates one image generation: the outbound rate
// limit, the provider call, the artifact write, and the history record.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"imagegen/internal/artifact"
	"imagegen/internal/clock"
	"imagegen/internal/models"
	"imagegen/internal/provider"
	"imagegen/internal/ratelimit"
	"imagegen/internal/storage"

	"github.com/google/uuid"
)

// DefaultImageURLPrefix is where the HTTP layer serves artifacts.
const DefaultImageURLPrefix = "/api/v1/images/"

// Service handles image generation and gallery business logic
type Service struct {
	window    *ratelimit.Window
	provider  provider.Provider
	artifacts ArtifactStore
	history   storage.Storage
	clock     clock.Clock

	defaults         models.GenerationDefaults
	historyRetention time.Duration
	sweepOnList      bool
	urlPrefix        string
	newID            func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source used for history timestamps and sweeps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithDefaults sets the parameters applied to fields a request leaves unset.
func WithDefaults(d models.GenerationDefaults) Option {
	return func(s *Service) { s.defaults = d }
}

// WithHistoryRetention makes Sweep prune history older than d. Zero keeps
// history forever.
func WithHistoryRetention(d time.Duration) Option {
	return func(s *Service) { s.historyRetention = d }
}

// WithSweepOnList evicts expired artifacts before every gallery listing.
func WithSweepOnList(enabled bool) Option {
	return func(s *Service) { s.sweepOnList = enabled }
}

// WithImageURLPrefix sets the prefix used to build download URLs.
func WithImageURLPrefix(prefix string) Option {
	return func(s *Service) { s.urlPrefix = prefix }
}

// NewService creates a generate service. The window is owned by the service;
// it must not be shared with other callers of the provider.
func NewService(window *ratelimit.Window, p provider.Provider, artifacts ArtifactStore, history storage.Storage, opts ...Option) *Service {
	s := &Service{
		window:    window,
		provider:  p,
		artifacts: artifacts,
		history:   history,
		clock:     clock.System{},
		defaults: models.GenerationDefaults{
			Model:  models.DefaultModel,
			Width:  models.DefaultWidth,
			Height: models.DefaultHeight,
			Steps:  models.DefaultSteps,
			Seed:   models.DefaultSeed,
		},
		sweepOnList: true,
		urlPrefix:   DefaultImageURLPrefix,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate validates the request, takes a slot in the outbound window, calls
// the provider once, and saves the returned image. Every attempt that reaches
// the window is recorded in history, whatever its outcome.
func (s *Service) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	if req == nil {
		return nil, NewInvalidRequestError("request body is required", nil)
	}

	req.ApplyDefaults(s.defaults)
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err.Error(), err)
	}

	if !s.provider.Configured() {
		return nil, NewProviderError(provider.ErrNotConfigured)
	}

	start := s.clock.Now()
	gen := models.NewGeneration(s.newID(), req, start)

	if err := s.window.CheckAndRecord(); err != nil {
		var exceeded *ratelimit.ExceededError
		if !errors.As(err, &exceeded) {
			return nil, NewInternalError("rate limiter failed", err)
		}
		s.finish(ctx, gen, models.GenerationRateLimited, err)
		slog.Warn("Generation throttled",
			"generation_id", gen.ID,
			"retry_after_seconds", exceeded.RetryAfterSeconds())
		return nil, NewRateLimitedError(exceeded)
	}

	img, err := s.provider.Generate(ctx, req)
	if err != nil {
		s.finish(ctx, gen, models.GenerationProviderError, err)
		slog.Error("Provider call failed",
			"generation_id", gen.ID,
			"provider", s.provider.Name(),
			"kind", provider.KindOf(err),
			"error", err)
		return nil, NewProviderError(err)
	}

	path, err := s.artifacts.Save(img.Data, req.Prompt)
	if err != nil {
		s.finish(ctx, gen, models.GenerationStorageError, err)
		slog.Error("Failed to save image", "generation_id", gen.ID, "error", err)
		return nil, NewStorageError("failed to save generated image", err)
	}

	gen.ArtifactName = filepath.Base(path)
	gen.SizeBytes = int64(len(img.Data))
	s.finish(ctx, gen, models.GenerationSucceeded, nil)

	slog.Info("Image generated",
		"generation_id", gen.ID,
		"artifact", gen.ArtifactName,
		"model", gen.Model,
		"size_bytes", gen.SizeBytes,
		"duration_ms", gen.DurationMS)

	resp := &models.GenerateResponse{}
	resp.FromGeneration(gen, s.imageURL(gen.ArtifactName))
	return resp, nil
}

// finish stamps the outcome and writes the history record. History is
// best effort: a failed write is logged and never fails the request.
func (s *Service) finish(ctx context.Context, gen *models.Generation, status string, cause error) {
	gen.Status = status
	if cause != nil {
		gen.Error = cause.Error()
	}
	gen.DurationMS = s.clock.Now().Sub(gen.CreatedAt).Milliseconds()

	if err := s.history.SaveGeneration(context.WithoutCancel(ctx), gen); err != nil {
		slog.Warn("Failed to record generation", "generation_id", gen.ID, "error", err)
	}
}

// Gallery lists retained images newest first. Expired images are evicted
// first when sweep-on-list is enabled.
func (s *Service) Gallery(ctx context.Context) (*models.GalleryResponse, error) {
	if s.sweepOnList {
		if removed, err := s.artifacts.EvictExpired(); err != nil {
			slog.Warn("Artifact sweep before listing failed", "error", err)
		} else if removed > 0 {
			slog.Info("Removed expired artifacts", "removed", removed)
		}
	}

	infos, err := s.artifacts.Artifacts()
	if err != nil {
		return nil, NewStorageError("failed to list images", err)
	}

	images := make([]models.ImageInfo, 0, len(infos))
	for _, info := range infos {
		images = append(images, models.ImageInfo{
			Name:      info.Name,
			URL:       s.imageURL(info.Name),
			SizeBytes: info.SizeBytes,
			CreatedAt: info.CreatedAt,
		})
	}

	return &models.GalleryResponse{
		Images:     images,
		TotalCount: len(images),
	}, nil
}

// OpenImage opens a stored image. Unknown and malformed names are both
// reported as not found.
func (s *Service) OpenImage(ctx context.Context, name string) (*os.File, artifact.Info, error) {
	f, info, err := s.artifacts.Open(name)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) || errors.Is(err, artifact.ErrInvalidName) {
			return nil, artifact.Info{}, NewImageNotFoundError(name)
		}
		return nil, artifact.Info{}, NewStorageError("failed to open image", err)
	}
	return f, info, nil
}

func (s *Service) Generations(ctx context.Context, req *models.ListGenerationsRequest) (*models.GenerationsResponse, error) {
	if req == nil {
		req = &models.ListGenerationsRequest{}
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err.Error(), err)
	}

	gens, err := s.history.RecentGenerations(ctx, req.Limit, req.Status)
	if err != nil {
		return nil, NewInternalError("failed to list generations", err)
	}

	return &models.GenerationsResponse{
		Generations: gens,
		TotalCount:  len(gens),
	}, nil
}

func (s *Service) Generation(ctx context.Context, id string) (*models.Generation, error) {
	if id == "" {
		return nil, NewInvalidRequestError("generation id is required", nil)
	}

	gen, err := s.history.GetGeneration(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewNotFoundError(fmt.Sprintf("generation '%s' not found", id))
		}
		return nil, NewInternalError("failed to get generation", err)
	}
	return gen, nil
}

// Quota reports the outbound window without recording anything.
func (s *Service) Quota(_ context.Context) *models.QuotaResponse {
	info := s.window.Status()
	return &models.QuotaResponse{
		Limit:             info.Limit,
		Remaining:         info.Remaining,
		WindowSeconds:     int(s.window.Period() / time.Second),
		ResetAt:           info.ResetAt,
		RetryAfterSeconds: int(info.RetryAfter / time.Second),
	}
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	ArtifactsRemoved   int
	GenerationsRemoved int
}

// Sweep evicts expired artifacts and prunes old history. Both steps run even
// if the first fails.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		result SweepResult
		errs   []error
	)

	removed, err := s.artifacts.EvictExpired()
	if err != nil {
		errs = append(errs, fmt.Errorf("evict artifacts: %w", err))
	}
	result.ArtifactsRemoved = removed

	if s.historyRetention > 0 {
		cutoff := s.clock.Now().Add(-s.historyRetention)
		n, err := s.history.DeleteGenerationsBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune history: %w", err))
		}
		result.GenerationsRemoved = n
	}

	return result, errors.Join(errs...)
}

// Health checks each dependency. A missing artifact directory makes the
// service unhealthy; history and provider problems degrade it.
func (s *Service) Health(ctx context.Context) *models.HealthCheckResponse {
	resp := models.NewHealthCheckResponse(models.StatusHealthy)

	if fi, err := os.Stat(s.artifacts.Dir()); err != nil || !fi.IsDir() {
		resp.AddComponent("artifacts", models.StatusUnhealthy, "Artifact directory is unavailable")
		resp.Status = models.StatusUnhealthy
	} else {
		resp.AddComponent("artifacts", models.StatusHealthy, "Artifact directory is available")
	}

	if err := s.history.Ping(ctx); err != nil {
		resp.AddComponent("history", models.StatusUnhealthy, err.Error())
		s.degrade(resp)
	} else {
		resp.AddComponent("history", models.StatusHealthy, "History store is operational")
	}

	if s.provider.Configured() {
		resp.AddComponent("provider", models.StatusHealthy, fmt.Sprintf("Provider %s is configured", s.provider.Name()))
	} else {
		resp.AddComponent("provider", models.StatusUnhealthy, "Provider API key is not configured")
		s.degrade(resp)
	}

	info := s.window.Status()
	resp.AddMetric("rate_limit_capacity", info.Limit)
	resp.AddMetric("rate_limit_remaining", info.Remaining)

	return resp
}

func (s *Service) degrade(resp *models.HealthCheckResponse) {
	if resp.Status == models.StatusHealthy {
		resp.Status = models.StatusDegraded
	}
}

func (s *Service) imageURL(name string) string {
	return s.urlPrefix + url.PathEscape(name)
}
