package memory

import (
	"context"
	"sync"
	"time"

	"backing-lab/internal/domain"
	"backing-lab/internal/normalization"
	"backing-lab/internal/storage"
)

// PriceRecordStore is an in-memory implementation of storage.PriceRecordStore.
type PriceRecordStore struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.PriceRecord
}

// NewPriceRecordStore creates a new in-memory price record store.
func NewPriceRecordStore() *PriceRecordStore {
	return &PriceRecordStore{
		data: make(map[string]map[string]domain.PriceRecord),
	}
}

var _ storage.PriceRecordStore = (*PriceRecordStore)(nil)

// InsertBulk adds records for days that are not stored yet.
func (s *PriceRecordStore) InsertBulk(_ context.Context, instrumentID string, records []domain.PriceRecord) (int, error) {
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
		days = make(map[string]domain.PriceRecord)
		s.data[instrumentID] = days
	}

	inserted := 0
	for _, r := range storage.DedupePrices(records) {
		key := domain.DayKey(r.Date)
		if _, exists := days[key]; exists {
			continue
		}
		days[key] = copyPrice(r)
		inserted++
	}
	return inserted, nil
}

// GetByInstrument returns all records for the instrument ordered by day ASC.
func (s *PriceRecordStore) GetByInstrument(_ context.Context, instrumentID string) ([]domain.PriceRecord, error) {
	return s.collect(instrumentID, func(time.Time) bool { return true }), nil
}

// GetByDayRange returns records within [start, end] by calendar day.
func (s *PriceRecordStore) GetByDayRange(_ context.Context, instrumentID string, start, end time.Time) ([]domain.PriceRecord, error) {
	lo, hi := domain.TruncateDay(start), domain.TruncateDay(end)
	return s.collect(instrumentID, func(d time.Time) bool {
		return !d.Before(lo) && !d.After(hi)
	}), nil
}

func (s *PriceRecordStore) collect(instrumentID string, keep func(time.Time) bool) []domain.PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceRecord
	for _, r := range s.data[instrumentID] {
		if keep(r.Date) {
			result = append(result, copyPrice(r))
		}
	}

	normalization.SortPriceRecords(result)
	return result
}

func copyPrice(r domain.PriceRecord) domain.PriceRecord {
	r.TrackedPrice = copyFloat(r.TrackedPrice)
	r.ReferencePrice = copyFloat(r.ReferencePrice)
	return r
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
