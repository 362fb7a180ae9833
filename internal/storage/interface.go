package storage

import (
	"context"
	"time"

	"imagegen/internal/models"
)

// Storage persists the history of generation attempts. It is a log, not the
// gallery: the artifact directory alone decides which images exist.
type Storage interface {
	// SaveGeneration inserts a generation or replaces the one with the same ID.
	SaveGeneration(ctx context.Context, g *models.Generation) error

	// GetGeneration retrieves a generation by ID, or ErrNotFound.
	GetGeneration(ctx context.Context, id string) (*models.Generation, error)

	// RecentGenerations returns up to limit generations, newest first. An empty
	// status matches every status.
	RecentGenerations(ctx context.Context, limit int, status string) ([]*models.Generation, error)

	// DeleteGenerationsBefore removes generations created before cutoff and
	// reports how many were removed.
	DeleteGenerationsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases connections and file handles.
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// Connection pool limits for database backends; zero keeps the driver default.
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`

	// Additional options for specific backends
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}
