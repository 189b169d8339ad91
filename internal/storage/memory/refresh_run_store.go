package memory

import (
	"context"
	"sort"
	"sync"

	"backing-lab/internal/domain"
	"backing-lab/internal/storage"
)

// RefreshRunStore is an in-memory implementation of storage.RefreshRunStore.
type RefreshRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RefreshRun
}

// NewRefreshRunStore creates a new in-memory refresh run store.
func NewRefreshRunStore() *RefreshRunStore {
	return &RefreshRunStore{data: make(map[string]*domain.RefreshRun)}
}

var _ storage.RefreshRunStore = (*RefreshRunStore)(nil)

// Insert adds a run. Returns ErrDuplicateKey if the run ID exists.
func (s *RefreshRunStore) Insert(_ context.Context, run *domain.RefreshRun) error {
	if run == nil || run.RunID == "" || run.InstrumentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	runCopy := *run
	s.data[run.RunID] = &runCopy
	return nil
}

// ListByInstrument returns up to limit runs, newest first. limit <= 0 means all.
func (s *RefreshRunStore) ListByInstrument(_ context.Context, instrumentID string, limit int) ([]*domain.RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RefreshRun
	for _, r := range s.data {
		if r.InstrumentID == instrumentID {
			runCopy := *r
			result = append(result, &runCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
