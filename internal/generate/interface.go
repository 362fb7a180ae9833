package generate

import (
	"context"
	"os"

	"imagegen/internal/artifact"
	"imagegen/internal/models"
)

// ServiceInterface defines the operations the HTTP layer needs
type ServiceInterface interface {
	// Generate spends one slot of the outbound window, calls the provider, and
	// stores the image
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)

	// Gallery lists retained images, newest first
	Gallery(ctx context.Context) (*models.GalleryResponse, error)

	// OpenImage opens a stored image for download. The caller closes the file
	OpenImage(ctx context.Context, name string) (*os.File, artifact.Info, error)

	// Generations returns recent history entries
	Generations(ctx context.Context, req *models.ListGenerationsRequest) (*models.GenerationsResponse, error)

	// Generation returns one history entry
	Generation(ctx context.Context, id string) (*models.Generation, error)

	// Quota reports the outbound window without consuming it
	Quota(ctx context.Context) *models.QuotaResponse

	// Health checks the history store, artifact directory, and provider
	Health(ctx context.Context) *models.HealthCheckResponse
}

// ArtifactStore is the subset of *artifact.Store the service uses.
type ArtifactStore interface {
	Save(content []byte, label string) (string, error)
	Artifacts() ([]artifact.Info, error)
	Open(name string) (*os.File, artifact.Info, error)
	EvictExpired() (int, error)
	Dir() string
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)

var _ ArtifactStore = (*artifact.Store)(nil)
