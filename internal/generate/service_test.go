package generate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"imagegen/internal/artifact"
	"imagegen/internal/clock"
	"imagegen/internal/models"
	"imagegen/internal/provider"
	"imagegen/internal/ratelimit"
	"imagegen/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider implements provider.Provider for testing
type MockProvider struct {
	mu         sync.Mutex
	configured bool
	data       []byte
	err        error
	calls      int
	lastReq    *models.GenerateRequest
}

func NewMockProvider() *MockProvider {
	return &MockProvider{configured: true, data: []byte("\x89PNG fake image")}
}

func (m *MockProvider) Generate(_ context.Context, req *models.GenerateRequest) (*provider.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	copied := *req
	m.lastReq = &copied
	if m.err != nil {
		return nil, m.err
	}
	return &provider.Image{Data: m.data, SourceFormat: "png", Width: req.Width, Height: req.Height, Model: req.Model}, nil
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Configured() bool { return m.configured }

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testEnv struct {
	svc      *Service
	clk      *clock.Manual
	provider *MockProvider
	store    *artifact.Store
	history  *storage.MemoryStorage
	dir      string
}

func newTestEnv(t *testing.T, capacity int, opts ...Option) *testEnv {
	t.Helper()

	clk := clock.NewManual(time.Now().Truncate(time.Second))
	dir := filepath.Join(t.TempDir(), "images")
	store, err := artifact.NewStore(dir, time.Hour, clk)
	require.NoError(t, err)
	history, err := storage.NewMemoryStorage(storage.Config{})
	require.NoError(t, err)
	prov := NewMockProvider()

	opts = append([]Option{WithClock(clk), WithHistoryRetention(24 * time.Hour)}, opts...)
	svc := NewService(ratelimit.NewWindow(capacity, time.Minute, clk), prov, store, history, opts...)

	n := 0
	svc.newID = func() string {
		n++
		return "gen-" + string(rune('0'+n))
	}

	return &testEnv{svc: svc, clk: clk, provider: prov, store: store, history: history, dir: dir}
}

func requireServiceError(t *testing.T, err error, status int, code string) *ServiceError {
	t.Helper()
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status, se.StatusCode)
	assert.Equal(t, code, se.Code)
	return se
}

func TestGenerate_Success(t *testing.T) {
	env := newTestEnv(t, 6)
	ctx := context.Background()

	resp, err := env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "  a red fox in snow  "})
	require.NoError(t, err)

	wantName := artifact.FileName(env.clk.Now(), "a red fox in snow")
	assert.Equal(t, "gen-1", resp.ID)
	assert.Equal(t, wantName, resp.Name)
	assert.Equal(t, DefaultImageURLPrefix+url.PathEscape(wantName), resp.URL)
	assert.Contains(t, resp.URL, "a%20red%20fox%20in%20snow")
	assert.Equal(t, "a red fox in snow", resp.Prompt)
	assert.Equal(t, models.DefaultModel, resp.Model)
	assert.Equal(t, models.DefaultWidth, resp.Width)
	assert.Equal(t, models.DefaultHeight, resp.Height)
	assert.Equal(t, int64(len(env.provider.data)), resp.SizeBytes)

	content, err := os.ReadFile(filepath.Join(env.dir, wantName))
	require.NoError(t, err)
	assert.Equal(t, env.provider.data, content)

	require.NotNil(t, env.provider.lastReq)
	assert.Equal(t, models.DefaultSteps, env.provider.lastReq.Steps)
	assert.Nil(t, env.provider.lastReq.Seed, "no seed unless one is configured or requested")

	gen, err := env.history.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationSucceeded, gen.Status)
	assert.Equal(t, wantName, gen.ArtifactName)
	assert.Empty(t, gen.Error)
}

func TestGenerate_CustomDefaults(t *testing.T) {
	env := newTestEnv(t, 6, WithDefaults(models.GenerationDefaults{
		Model: "custom/model", Width: 512, Height: 512, Steps: 8, Seed: -1,
	}))

	resp, err := env.svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "cat", Width: 1024})
	require.NoError(t, err)
	assert.Equal(t, "custom/model", resp.Model)
	assert.Equal(t, 1024, resp.Width)
	assert.Equal(t, 512, resp.Height)
	assert.Equal(t, 8, env.provider.lastReq.Steps)
}

func TestGenerate_ValidationDoesNotSpendQuota(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *models.GenerateRequest
	}{
		{name: "empty prompt", req: &models.GenerateRequest{Prompt: "   "}},
		{name: "bad width", req: &models.GenerateRequest{Prompt: "x", Width: 500}},
		{name: "too many steps", req: &models.GenerateRequest{Prompt: "x", Steps: 51}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Generate(ctx, tt.req)
			requireServiceError(t, err, http.StatusUnprocessableEntity, models.ErrorCodeValidation)
		})
	}

	_, err := env.svc.Generate(ctx, nil)
	requireServiceError(t, err, http.StatusBadRequest, models.ErrorCodeInvalidRequest)

	assert.Equal(t, 0, env.provider.Calls())
	assert.Equal(t, 1, env.svc.Quota(ctx).Remaining)

	gens, err := env.history.RecentGenerations(ctx, 0, "")
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestGenerate_NotConfigured(t *testing.T) {
	env := newTestEnv(t, 1)
	env.provider.configured = false

	_, err := env.svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "x"})
	se := requireServiceError(t, err, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable)
	assert.ErrorIs(t, se, provider.ErrNotConfigured)
	assert.Equal(t, 0, env.provider.Calls())
	assert.Equal(t, 1, env.svc.Quota(context.Background()).Remaining)
}

func TestGenerate_RateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "x"})
		require.NoError(t, err)
		env.clk.Advance(10 * time.Second)
	}

	_, err := env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "x"})
	se := requireServiceError(t, err, http.StatusTooManyRequests, models.ErrorCodeRateLimited)
	assert.Equal(t, 40*time.Second, se.RetryAfter)
	assert.Equal(t, 40, se.RetryAfterSeconds())
	assert.ErrorIs(t, err, ratelimit.ErrLimitExceeded)
	assert.Equal(t, 2, env.provider.Calls())

	gens, err := env.history.RecentGenerations(ctx, 0, models.GenerationRateLimited)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Contains(t, gens[0].Error, "rate limit exceeded")

	env.clk.Advance(40 * time.Second)
	_, err = env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "x"})
	assert.NoError(t, err)
}

func TestGenerate_ProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unauthorized",
			err:        &provider.Error{Kind: provider.KindUnauthorized, StatusCode: 401, Message: "invalid API key"},
			wantStatus: http.StatusBadGateway,
			wantCode:   models.ErrorCodeProviderUnauthorized,
		},
		{
			name:       "upstream throttled",
			err:        &provider.Error{Kind: provider.KindRateLimited, StatusCode: 429, Message: "slow down"},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   models.ErrorCodeProviderRateLimited,
		},
		{
			name:       "rejected request",
			err:        &provider.Error{Kind: provider.KindInvalidRequest, StatusCode: 400, Message: "invalid request: bad model"},
			wantStatus: http.StatusBadRequest,
			wantCode:   models.ErrorCodeInvalidRequest,
		},
		{
			name:       "upstream failure",
			err:        &provider.Error{Kind: provider.KindUpstream, StatusCode: 500, Message: "Internal Server Error"},
			wantStatus: http.StatusBadGateway,
			wantCode:   models.ErrorCodeProviderError,
		},
		{
			name:       "transport",
			err:        &provider.Error{Kind: provider.KindTransport, Message: "request failed", Err: errors.New("dial tcp")},
			wantStatus: http.StatusBadGateway,
			wantCode:   models.ErrorCodeProviderError,
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: http.StatusBadGateway,
			wantCode:   models.ErrorCodeProviderError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 6)
			env.provider.err = tt.err
			ctx := context.Background()

			_, err := env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "x"})
			requireServiceError(t, err, tt.wantStatus, tt.wantCode)

			// A failed provider call still used its slot.
			assert.Equal(t, 5, env.svc.Quota(ctx).Remaining)

			gen, err := env.history.GetGeneration(ctx, "gen-1")
			require.NoError(t, err)
			assert.Equal(t, models.GenerationProviderError, gen.Status)
			assert.Equal(t, tt.err.Error(), gen.Error)

			names, err := env.store.List()
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestGenerate_StorageFailure(t *testing.T) {
	env := newTestEnv(t, 6)
	ctx := context.Background()

	require.NoError(t, os.RemoveAll(env.dir))
	require.NoError(t, os.WriteFile(env.dir, []byte("not a directory"), 0o644))

	_, err := env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "x"})
	se := requireServiceError(t, err, http.StatusInternalServerError, models.ErrorCodeStorageError)

	var storageErr *artifact.StorageError
	assert.ErrorAs(t, se, &storageErr)

	gen, err := env.history.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStorageError, gen.Status)
}

func writeAged(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestGallery(t *testing.T) {
	env := newTestEnv(t, 6)
	now := env.clk.Now()

	writeAged(t, env.dir, "20250101_000000_old.png", now.Add(-2*time.Hour))
	writeAged(t, env.dir, "20250101_000100_middle.jpg", now.Add(-30*time.Minute))
	writeAged(t, env.dir, "20250101_000200_new.png", now)
	writeAged(t, env.dir, "notes.txt", now)

	gallery, err := env.svc.Gallery(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, gallery.TotalCount)
	assert.Equal(t, "20250101_000200_new.png", gallery.Images[0].Name)
	assert.Equal(t, "20250101_000100_middle.jpg", gallery.Images[1].Name)
	assert.Equal(t, DefaultImageURLPrefix+"20250101_000200_new.png", gallery.Images[0].URL)

	_, err = os.Stat(filepath.Join(env.dir, "20250101_000000_old.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestGallery_WithoutSweep(t *testing.T) {
	env := newTestEnv(t, 6, WithSweepOnList(false))
	writeAged(t, env.dir, "20250101_000000_old.png", env.clk.Now().Add(-2*time.Hour))

	gallery, err := env.svc.Gallery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, gallery.TotalCount)
}

func TestGallery_EmptyDirectory(t *testing.T) {
	env := newTestEnv(t, 6)
	require.NoError(t, os.RemoveAll(env.dir))

	gallery, err := env.svc.Gallery(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, gallery.Images)
	assert.Equal(t, 0, gallery.TotalCount)
}

func TestOpenImage(t *testing.T) {
	env := newTestEnv(t, 6)
	ctx := context.Background()
	writeAged(t, env.dir, "20250101_000000_cat.png", env.clk.Now())

	f, info, err := env.svc.OpenImage(ctx, "20250101_000000_cat.png")
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "20250101_000000_cat.png", string(content))
	assert.Equal(t, int64(len(content)), info.SizeBytes)

	for _, name := range []string{"missing.png", "../secret.png", "notes.txt", ""} {
		_, _, err := env.svc.OpenImage(ctx, name)
		requireServiceError(t, err, http.StatusNotFound, models.ErrorCodeImageNotFound)
	}
}

func TestGenerations(t *testing.T) {
	env := newTestEnv(t, 6)
	ctx := context.Background()

	_, err := env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "one"})
	require.NoError(t, err)
	env.clk.Advance(time.Second)
	env.provider.err = &provider.Error{Kind: provider.KindUpstream, Message: "down"}
	_, err = env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "two"})
	require.Error(t, err)

	all, err := env.svc.Generations(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 2, all.TotalCount)
	assert.Equal(t, "gen-2", all.Generations[0].ID)

	failed, err := env.svc.Generations(ctx, &models.ListGenerationsRequest{Status: "PROVIDER_ERROR"})
	require.NoError(t, err)
	require.Equal(t, 1, failed.TotalCount)
	assert.Equal(t, "two", failed.Generations[0].Prompt)

	_, err = env.svc.Generations(ctx, &models.ListGenerationsRequest{Status: "bogus"})
	requireServiceError(t, err, http.StatusUnprocessableEntity, models.ErrorCodeValidation)

	gen, err := env.svc.Generation(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationSucceeded, gen.Status)

	_, err = env.svc.Generation(ctx, "nope")
	requireServiceError(t, err, http.StatusNotFound, models.ErrorCodeNotFound)

	_, err = env.svc.Generation(ctx, "")
	requireServiceError(t, err, http.StatusBadRequest, models.ErrorCodeInvalidRequest)
}

func TestQuota(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	q := env.svc.Quota(ctx)
	assert.Equal(t, 1, q.Limit)
	assert.Equal(t, 1, q.Remaining)
	assert.Equal(t, 60, q.WindowSeconds)
	assert.Zero(t, q.RetryAfterSeconds)

	_, err := env.svc.Generate(ctx, &models.GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	env.clk.Advance(15 * time.Second)

	q = env.svc.Quota(ctx)
	assert.Equal(t, 0, q.Remaining)
	assert.Equal(t, 45, q.RetryAfterSeconds)

	// Quota never records.
	env.clk.Advance(45 * time.Second)
	assert.Equal(t, 1, env.svc.Quota(ctx).Remaining)
}

func TestSweep(t *testing.T) {
	env := newTestEnv(t, 6)
	ctx := context.Background()
	now := env.clk.Now()

	writeAged(t, env.dir, "20250101_000000_old.png", now.Add(-2*time.Hour))
	writeAged(t, env.dir, "20250101_000100_new.png", now)

	old := models.NewGeneration("old", &models.GenerateRequest{Prompt: "x"}, now.Add(-48*time.Hour))
	old.Status = models.GenerationSucceeded
	require.NoError(t, env.history.SaveGeneration(ctx, old))
	recent := models.NewGeneration("recent", &models.GenerateRequest{Prompt: "x"}, now)
	recent.Status = models.GenerationSucceeded
	require.NoError(t, env.history.SaveGeneration(ctx, recent))

	result, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{ArtifactsRemoved: 1, GenerationsRemoved: 1}, result)

	names, err := env.store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"20250101_000100_new.png"}, names)

	_, err = env.history.GetGeneration(ctx, "recent")
	assert.NoError(t, err)
}

func TestSweep_HistoryRetentionDisabled(t *testing.T) {
	env := newTestEnv(t, 6, WithHistoryRetention(0))
	ctx := context.Background()

	old := models.NewGeneration("old", &models.GenerateRequest{Prompt: "x"}, env.clk.Now().Add(-48*time.Hour))
	require.NoError(t, env.history.SaveGeneration(ctx, old))

	result, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.GenerationsRemoved)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 6)
	ctx := context.Background()

	health := env.svc.Health(ctx)
	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Equal(t, models.StatusHealthy, health.Components["artifacts"].Status)
	assert.Equal(t, models.StatusHealthy, health.Components["history"].Status)
	assert.Equal(t, models.StatusHealthy, health.Components["provider"].Status)
	assert.Equal(t, 6, health.Metrics["rate_limit_remaining"])

	env.provider.configured = false
	health = env.svc.Health(ctx)
	assert.Equal(t, models.StatusDegraded, health.Status)
	assert.Equal(t, models.StatusUnhealthy, health.Components["provider"].Status)

	require.NoError(t, os.RemoveAll(env.dir))
	health = env.svc.Health(ctx)
	assert.Equal(t, models.StatusUnhealthy, health.Status)
}
