package lifecycle

import (
	"context"
	"sync"
	"time"

	"sketchgen/internal/domain"
)

// MemoryStore keeps assets in a map with the same compare-and-set contract as the
// Postgres repository.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string]domain.Asset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[string]domain.Asset)}
}

func (s *MemoryStore) Create(_ context.Context, asset *domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assets[asset.ID]; exists {
		return domain.ErrDuplicateOperation
	}
	s.assets[asset.ID] = *asset
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to domain.AssetStatus, fields domain.AssetFields, updatedAt time.Time) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok || a.Status != from {
		return nil, domain.ErrConcurrentUpdate
	}
	a.Status = to
	fields.Apply(&a)
	a.UpdatedAt = updatedAt
	s.assets[id] = a
	return &a, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.assets, id)
	return nil
}

var _ domain.AssetRepository = (*MemoryStore)(nil)
