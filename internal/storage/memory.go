package storage

import (
	"context"
	"sync"
	"time"

	"imagegen/internal/models"
)

// MemoryStorage keeps generation history in process memory. History is lost
// on restart, which suits local runs and tests.
type MemoryStorage struct {
	mu          sync.RWMutex
	generations map[string]*models.Generation
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(_ Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		generations: make(map[string]*models.Generation),
	}, nil
}

func (m *MemoryStorage) SaveGeneration(_ context.Context, g *models.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generations[g.ID] = copyGeneration(g)
	return nil
}

func (m *MemoryStorage) GetGeneration(_ context.Context, id string) (*models.Generation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.generations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGeneration(g), nil
}

func (m *MemoryStorage) RecentGenerations(_ context.Context, limit int, status string) ([]*models.Generation, error) {
	m.mu.RLock()
	all := make([]*models.Generation, 0, len(m.generations))
	for _, g := range m.generations {
		all = append(all, g)
	}
	m.mu.RUnlock()

	newestFirst(all)
	return filterRecent(all, limit, status), nil
}

func (m *MemoryStorage) DeleteGenerationsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, g := range m.generations {
		if g.CreatedAt.Before(cutoff) {
			delete(m.generations, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generations = make(map[string]*models.Generation)
	return nil
}
