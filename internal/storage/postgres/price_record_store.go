package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backing-lab/internal/domain"
	"backing-lab/internal/storage"
)

// PriceRecordStore implements storage.PriceRecordStore using PostgreSQL.
type PriceRecordStore struct {
	pool *Pool
}

// NewPriceRecordStore creates a new PriceRecordStore.
func NewPriceRecordStore(pool *Pool) *PriceRecordStore {
	return &PriceRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceRecordStore = (*PriceRecordStore)(nil)

// InsertBulk adds records for days not yet stored, in one transaction.
func (s *PriceRecordStore) InsertBulk(ctx context.Context, instrumentID string, records []domain.PriceRecord) (int, error) {
	if instrumentID == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO price_records (instrument_id, day, tracked_price, reference_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instrument_id, day) DO NOTHING
	`

	inserted := 0
	for _, r := range storage.DedupePrices(records) {
		tag, err := tx.Exec(ctx, query, instrumentID, r.Date, r.TrackedPrice, r.ReferencePrice)
		if err != nil {
			return 0, fmt.Errorf("insert price record in bulk: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// GetByInstrument returns all records for the instrument ordered by day ASC.
func (s *PriceRecordStore) GetByInstrument(ctx context.Context, instrumentID string) ([]domain.PriceRecord, error) {
	query := `
		SELECT day, tracked_price, reference_price
		FROM price_records
		WHERE instrument_id = $1
		ORDER BY day ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get price records by instrument: %w", err)
	}
	defer rows.Close()

	return scanPriceRecords(rows)
}

// GetByDayRange returns records within [start, end] by calendar day.
func (s *PriceRecordStore) GetByDayRange(ctx context.Context, instrumentID string, start, end time.Time) ([]domain.PriceRecord, error) {
	query := `
		SELECT day, tracked_price, reference_price
		FROM price_records
		WHERE instrument_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID, domain.TruncateDay(start), domain.TruncateDay(end))
	if err != nil {
		return nil, fmt.Errorf("get price records by day range: %w", err)
	}
	defer rows.Close()

	return scanPriceRecords(rows)
}

func scanPriceRecords(rows pgx.Rows) ([]domain.PriceRecord, error) {
	var records []domain.PriceRecord

	for rows.Next() {
		var r domain.PriceRecord
		if err := rows.Scan(&r.Date, &r.TrackedPrice, &r.ReferencePrice); err != nil {
			return nil, fmt.Errorf("scan price record row: %w", err)
		}
		r.Date = domain.TruncateDay(r.Date)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price record rows: %w", err)
	}
	return records, nil
}
