// Package storage declares persistence contracts for raw series records and
// projection snapshots.
package storage

import (
	"context"
	"time"

	"backing-lab/internal/domain"
)

// YieldRecordStore persists raw yield records keyed by (instrument, calendar day).
// Records are immutable: a day that is already stored keeps its first value.
type YieldRecordStore interface {
	// InsertBulk stores records for days not yet present and returns how many were added.
	// Within one batch the last record for a day wins.
	InsertBulk(ctx context.Context, instrumentID string, records []domain.YieldRecord) (int, error)

	// GetByInstrument returns every stored record for the instrument, ordered by day ASC.
	GetByInstrument(ctx context.Context, instrumentID string) ([]domain.YieldRecord, error)

	// GetByDayRange returns records with start <= day <= end, ordered by day ASC.
	GetByDayRange(ctx context.Context, instrumentID string, start, end time.Time) ([]domain.YieldRecord, error)
}

// PriceRecordStore persists raw price records keyed by (instrument, calendar day).
type PriceRecordStore interface {
	// InsertBulk stores records for days not yet present and returns how many were added.
	InsertBulk(ctx context.Context, instrumentID string, records []domain.PriceRecord) (int, error)

	// GetByInstrument returns every stored record for the instrument, ordered by day ASC.
	GetByInstrument(ctx context.Context, instrumentID string) ([]domain.PriceRecord, error)

	// GetByDayRange returns records with start <= day <= end, ordered by day ASC.
	GetByDayRange(ctx context.Context, instrumentID string, start, end time.Time) ([]domain.PriceRecord, error)
}

// ProjectionStore persists computed projection series.
type ProjectionStore interface {
	// InsertSnapshot stores a run. Returns ErrDuplicateKey if the run ID exists.
	InsertSnapshot(ctx context.Context, snapshot *domain.ProjectionSnapshot) error

	// GetLatest returns the most recent run for the instrument. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, instrumentID string) (*domain.ProjectionSnapshot, error)
}

// RefreshRunStore persists the refresh audit trail.
type RefreshRunStore interface {
	// Insert adds a run. Returns ErrDuplicateKey if the run ID exists.
	Insert(ctx context.Context, run *domain.RefreshRun) error

	// ListByInstrument returns up to limit runs, newest first.
	ListByInstrument(ctx context.Context, instrumentID string, limit int) ([]*domain.RefreshRun, error)
}

// DedupeYields collapses records to one per calendar day, keeping the last one seen,
// and normalizes each Date to midnight UTC of its own calendar day.
func DedupeYields(records []domain.YieldRecord) []domain.YieldRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.YieldRecord, 0, len(records))
	for _, r := range records {
		r.Date = domain.TruncateDay(r.Date)
		key := domain.DayKey(r.Date)
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// DedupePrices is DedupeYields for price records.
func DedupePrices(records []domain.PriceRecord) []domain.PriceRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.PriceRecord, 0, len(records))
	for _, r := range records {
		r.Date = domain.TruncateDay(r.Date)
		key := domain.DayKey(r.Date)
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// ValidateSnapshot checks the fields every backend requires.
func ValidateSnapshot(s *domain.ProjectionSnapshot) error {
	if s == nil || s.RunID == "" || s.InstrumentID == "" || s.ComputedAt.IsZero() {
		return ErrInvalidInput
	}
	return nil
}
