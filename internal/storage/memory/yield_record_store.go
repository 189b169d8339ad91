package memory

import (
	"context"
	"sync"
	"time"

	"backing-lab/internal/domain"
	"backing-lab/internal/normalization"
	"backing-lab/internal/storage"
)

// YieldRecordStore is an in-memory implementation of storage.YieldRecordStore.
type YieldRecordStore struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.YieldRecord // instrument -> day key -> record
}

// NewYieldRecordStore creates a new in-memory yield record store.
func NewYieldRecordStore() *YieldRecordStore {
	return &YieldRecordStore{
		data: make(map[string]map[string]domain.YieldRecord),
	}
}

var _ storage.YieldRecordStore = (*YieldRecordStore)(nil)

// InsertBulk adds records for days that are not stored yet.
func (s *YieldRecordStore) InsertBulk(_ context.Context, instrumentID string, records []domain.YieldRecord) (int, error) {
	if instrumentID == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	days, ok := s.data[instrumentID]
	if !ok {
		days = make(map[string]domain.YieldRecord)
		s.data[instrumentID] = days
	}

	inserted := 0
	for _, r := range storage.DedupeYields(records) {
		key := domain.DayKey(r.Date)
		if _, exists := days[key]; exists {
			continue
		}
		days[key] = copyYield(r)
		inserted++
	}
	return inserted, nil
}

// GetByInstrument returns all records for the instrument ordered by day ASC.
func (s *YieldRecordStore) GetByInstrument(_ context.Context, instrumentID string) ([]domain.YieldRecord, error) {
	return s.collect(instrumentID, func(time.Time) bool { return true }), nil
}

// GetByDayRange returns records within [start, end] by calendar day.
func (s *YieldRecordStore) GetByDayRange(_ context.Context, instrumentID string, start, end time.Time) ([]domain.YieldRecord, error) {
	lo, hi := domain.TruncateDay(start), domain.TruncateDay(end)
	return s.collect(instrumentID, func(d time.Time) bool {
		return !d.Before(lo) && !d.After(hi)
	}), nil
}

func (s *YieldRecordStore) collect(instrumentID string, keep func(time.Time) bool) []domain.YieldRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.YieldRecord
	for _, r := range s.data[instrumentID] {
		if keep(r.Date) {
			result = append(result, copyYield(r))
		}
	}

	normalization.SortYieldRecords(result)
	return result
}

func copyYield(r domain.YieldRecord) domain.YieldRecord {
	if r.PayoutPerShareUnit != nil {
		v := *r.PayoutPerShareUnit
		r.PayoutPerShareUnit = &v
	}
	if r.RawFields != nil {
		fields := make(map[string]any, len(r.RawFields))
		for k, v := range r.RawFields {
			fields[k] = v
		}
		r.RawFields = fields
	}
	return r
}
