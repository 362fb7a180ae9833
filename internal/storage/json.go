package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"imagegen/internal/models"
)

// JSONStorage persists generation history to a single JSON file. The file is
// read once at startup; every mutation rewrites it through a temp file and
// rename so a crash never leaves a half-written history.
type JSONStorage struct {
	filePath string
	mu       sync.RWMutex
	data     *JSONData
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Generations []*models.Generation `json:"generations"`
	LastUpdated time.Time            `json:"last_updated"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONStorage{filePath: config.Path}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		return j.saveData(&JSONData{Generations: []*models.Generation{}})
	}
	return nil
}

func (j *JSONStorage) loadData() error {
	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if len(fileData) > 0 {
		if err := json.Unmarshal(fileData, &data); err != nil {
			return fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
	}
	if data.Generations == nil {
		data.Generations = []*models.Generation{}
	}

	j.mu.Lock()
	j.data = &data
	j.mu.Unlock()
	return nil
}

// saveData writes data atomically. Caller holds mu for writing, except
// during construction.
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now().UTC()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.filePath), ".generations-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(fileData); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

// mutate applies fn to a copy of the data and persists it. The in-memory
// state only changes if the write succeeds.
func (j *JSONStorage) mutate(fn func(gens []*models.Generation) []*models.Generation) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.data == nil {
		return fmt.Errorf("storage is closed")
	}

	current := make([]*models.Generation, len(j.data.Generations))
	copy(current, j.data.Generations)

	next := &JSONData{Generations: fn(current)}
	if err := j.saveData(next); err != nil {
		return err
	}
	j.data = next
	return nil
}

func (j *JSONStorage) SaveGeneration(_ context.Context, g *models.Generation) error {
	stored := copyGeneration(g)
	return j.mutate(func(gens []*models.Generation) []*models.Generation {
		for i, existing := range gens {
			if existing.ID == g.ID {
				gens[i] = stored
				return gens
			}
		}
		return append(gens, stored)
	})
}

func (j *JSONStorage) GetGeneration(_ context.Context, id string) (*models.Generation, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.data == nil {
		return nil, fmt.Errorf("storage is closed")
	}
	for _, g := range j.data.Generations {
		if g.ID == id {
			return copyGeneration(g), nil
		}
	}
	return nil, ErrNotFound
}

func (j *JSONStorage) RecentGenerations(_ context.Context, limit int, status string) ([]*models.Generation, error) {
	j.mu.RLock()
	if j.data == nil {
		j.mu.RUnlock()
		return nil, fmt.Errorf("storage is closed")
	}
	all := make([]*models.Generation, len(j.data.Generations))
	copy(all, j.data.Generations)
	j.mu.RUnlock()

	newestFirst(all)
	return filterRecent(all, limit, status), nil
}

func (j *JSONStorage) DeleteGenerationsBefore(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := j.mutate(func(gens []*models.Generation) []*models.Generation {
		kept := gens[:0]
		for _, g := range gens {
			if g.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, g)
		}
		return kept
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Ping verifies the history file is still readable.
func (j *JSONStorage) Ping(_ context.Context) error {
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("history file unavailable: %w", err)
	}
	return nil
}

// Close drops the in-memory copy; the file is already up to date.
func (j *JSONStorage) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.data = nil
	return nil
}
