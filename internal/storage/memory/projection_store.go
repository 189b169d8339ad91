package memory

import (
	"context"
	"sync"

	"backing-lab/internal/domain"
	"backing-lab/internal/storage"
)

// ProjectionStore is an in-memory implementation of storage.ProjectionStore.
type ProjectionStore struct {
	mu     sync.RWMutex
	runs   map[string]struct{}
	latest map[string]*domain.ProjectionSnapshot // instrument -> newest run
}

// NewProjectionStore creates a new in-memory projection store.
func NewProjectionStore() *ProjectionStore {
	return &ProjectionStore{
		runs:   make(map[string]struct{}),
		latest: make(map[string]*domain.ProjectionSnapshot),
	}
}

var _ storage.ProjectionStore = (*ProjectionStore)(nil)

// InsertSnapshot stores a run. Returns ErrDuplicateKey if the run ID exists.
func (s *ProjectionStore) InsertSnapshot(_ context.Context, snapshot *domain.ProjectionSnapshot) error {
	if err := storage.ValidateSnapshot(snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[snapshot.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.runs[snapshot.RunID] = struct{}{}

	cur, ok := s.latest[snapshot.InstrumentID]
	if !ok || !snapshot.ComputedAt.Before(cur.ComputedAt) {
		s.latest[snapshot.InstrumentID] = copySnapshot(snapshot)
	}
	return nil
}

// GetLatest returns the newest run for the instrument. Returns ErrNotFound if none.
func (s *ProjectionStore) GetLatest(_ context.Context, instrumentID string) (*domain.ProjectionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.latest[instrumentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(snap), nil
}

func copySnapshot(s *domain.ProjectionSnapshot) *domain.ProjectionSnapshot {
	out := *s
	out.Points = make([]domain.ProjectedPoint, len(s.Points))
	for i, p := range s.Points {
		p.BackingRatio = copyFloat(p.BackingRatio)
		p.Discount = copyFloat(p.Discount)
		p.SineTrend = copyFloat(p.SineTrend)
		out.Points[i] = p
	}
	return &out
}
