package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backing-lab/internal/domain"
	"backing-lab/internal/storage"
)

// ProjectionStore implements storage.ProjectionStore using ClickHouse.
// Each snapshot is stored as one row per projected day.
type ProjectionStore struct {
	conn *Conn
}

// NewProjectionStore creates a new ProjectionStore.
func NewProjectionStore(conn *Conn) *ProjectionStore {
	return &ProjectionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ProjectionStore = (*ProjectionStore)(nil)

// InsertSnapshot stores a run. Returns ErrDuplicateKey if the run ID exists.
func (s *ProjectionStore) InsertSnapshot(ctx context.Context, snap *domain.ProjectionSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}
	if len(snap.Points) == 0 {
		return fmt.Errorf("%w: snapshot has no points", storage.ErrInvalidInput)
	}

	// MergeTree does not enforce uniqueness.
	exists, err := s.exists(ctx, snap.RunID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO projection_points (
			run_id, instrument_id, computed_at, day, day_index,
			backing_ratio, discount, trend_value, linear_trend, sine_trend
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	computedAt := snap.ComputedAt.UTC()
	for _, p := range snap.Points {
		err = batch.Append(
			snap.RunID, snap.InstrumentID, computedAt, domain.TruncateDay(p.Date), int32(p.DayIndex),
			p.BackingRatio, p.Discount, p.TrendValue, p.LinearTrend, p.SineTrend,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest returns the most recent run for the instrument. Returns ErrNotFound if none.
func (s *ProjectionStore) GetLatest(ctx context.Context, instrumentID string) (*domain.ProjectionSnapshot, error) {
	var (
		runID      string
		computedAt time.Time
	)
	err := s.conn.QueryRow(ctx, `
		SELECT run_id, computed_at
		FROM projection_points
		WHERE instrument_id = ?
		ORDER BY computed_at DESC, run_id DESC
		LIMIT 1
	`, instrumentID).Scan(&runID, &computedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest run: %w", err)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT day, day_index, backing_ratio, discount, trend_value, linear_trend, sine_trend
		FROM projection_points
		WHERE run_id = ?
		ORDER BY day_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run points: %w", err)
	}
	defer rows.Close()

	snap := &domain.ProjectionSnapshot{
		RunID:        runID,
		InstrumentID: instrumentID,
		ComputedAt:   computedAt,
	}
	for rows.Next() {
		var (
			p        domain.ProjectedPoint
			dayIndex int32
		)
		if err := rows.Scan(&p.Date, &dayIndex, &p.BackingRatio, &p.Discount, &p.TrendValue, &p.LinearTrend, &p.SineTrend); err != nil {
			return nil, fmt.Errorf("scan projection point: %w", err)
		}
		p.DayIndex = int(dayIndex)
		p.Date = domain.TruncateDay(p.Date)
		snap.Points = append(snap.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projection points: %w", err)
	}

	return snap, nil
}

func (s *ProjectionStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM projection_points WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
