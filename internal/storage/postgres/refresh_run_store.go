package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"backing-lab/internal/domain"
	"backing-lab/internal/storage"
)

// RefreshRunStore implements storage.RefreshRunStore using PostgreSQL.
type RefreshRunStore struct {
	pool *Pool
}

// NewRefreshRunStore creates a new RefreshRunStore.
func NewRefreshRunStore(pool *Pool) *RefreshRunStore {
	return &RefreshRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RefreshRunStore = (*RefreshRunStore)(nil)

// Insert adds a run. Returns ErrDuplicateKey if the run ID exists.
func (s *RefreshRunStore) Insert(ctx context.Context, run *domain.RefreshRun) error {
	if run == nil || run.RunID == "" || run.InstrumentID == "" {
		return storage.ErrInvalidInput
	}
	runID, err := uuid.Parse(run.RunID)
	if err != nil {
		return fmt.Errorf("%w: run id: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO refresh_runs (
			run_id, instrument_id, started_at, finished_at, status,
			yields_fetched, prices_fetched, points, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`

	_, err = s.pool.Exec(ctx, query,
		runID,
		run.InstrumentID,
		run.StartedAt,
		run.FinishedAt,
		string(run.Status),
		run.YieldsFetched,
		run.PricesFetched,
		run.Points,
		run.Error,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert refresh run: %w", err)
	}
	return nil
}

// ListByInstrument returns up to limit runs, newest first. limit <= 0 means all.
func (s *RefreshRunStore) ListByInstrument(ctx context.Context, instrumentID string, limit int) ([]*domain.RefreshRun, error) {
	query := `
		SELECT run_id::text, instrument_id, started_at, finished_at, status,
		       yields_fetched, prices_fetched, points, COALESCE(error, '')
		FROM refresh_runs
		WHERE instrument_id = $1
		ORDER BY started_at DESC
		LIMIT NULLIF($2, 0)
	`
	if limit < 0 {
		limit = 0
	}

	rows, err := s.pool.Query(ctx, query, instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.RefreshRun
	for rows.Next() {
		var r domain.RefreshRun
		var status string
		err := rows.Scan(
			&r.RunID,
			&r.InstrumentID,
			&r.StartedAt,
			&r.FinishedAt,
			&status,
			&r.YieldsFetched,
			&r.PricesFetched,
			&r.Points,
			&r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refresh run row: %w", err)
		}
		r.Status = domain.RunStatus(status)
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh run rows: %w", err)
	}
	return runs, nil
}
