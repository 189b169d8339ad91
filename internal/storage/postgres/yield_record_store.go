package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backing-lab/internal/domain"
	"backing-lab/internal/storage"
)

// YieldRecordStore implements storage.YieldRecordStore using PostgreSQL.
type YieldRecordStore struct {
	pool *Pool
}

// NewYieldRecordStore creates a new YieldRecordStore.
func NewYieldRecordStore(pool *Pool) *YieldRecordStore {
	return &YieldRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.YieldRecordStore = (*YieldRecordStore)(nil)

// InsertBulk adds records for days not yet stored, in one transaction.
func (s *YieldRecordStore) InsertBulk(ctx context.Context, instrumentID string, records []domain.YieldRecord) (int, error) {
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
		INSERT INTO yield_records (instrument_id, day, payout_per_share_unit, raw_fields)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instrument_id, day) DO NOTHING
	`

	inserted := 0
	for _, r := range storage.DedupeYields(records) {
		tag, err := tx.Exec(ctx, query, instrumentID, r.Date, r.PayoutPerShareUnit, r.RawFields)
		if err != nil {
			return 0, fmt.Errorf("insert yield record in bulk: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// GetByInstrument returns all records for the instrument ordered by day ASC.
func (s *YieldRecordStore) GetByInstrument(ctx context.Context, instrumentID string) ([]domain.YieldRecord, error) {
	query := `
		SELECT day, payout_per_share_unit, raw_fields
		FROM yield_records
		WHERE instrument_id = $1
		ORDER BY day ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get yield records by instrument: %w", err)
	}
	defer rows.Close()

	return scanYieldRecords(rows)
}

// GetByDayRange returns records within [start, end] by calendar day.
func (s *YieldRecordStore) GetByDayRange(ctx context.Context, instrumentID string, start, end time.Time) ([]domain.YieldRecord, error) {
	query := `
		SELECT day, payout_per_share_unit, raw_fields
		FROM yield_records
		WHERE instrument_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID, domain.TruncateDay(start), domain.TruncateDay(end))
	if err != nil {
		return nil, fmt.Errorf("get yield records by day range: %w", err)
	}
	defer rows.Close()

	return scanYieldRecords(rows)
}

func scanYieldRecords(rows pgx.Rows) ([]domain.YieldRecord, error) {
	var records []domain.YieldRecord

	for rows.Next() {
		var r domain.YieldRecord
		if err := rows.Scan(&r.Date, &r.PayoutPerShareUnit, &r.RawFields); err != nil {
			return nil, fmt.Errorf("scan yield record row: %w", err)
		}
		r.Date = domain.TruncateDay(r.Date)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate yield record rows: %w", err)
	}
	return records, nil
}
