package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backing-lab/internal/domain"
	"backing-lab/internal/storage"
)

func snapshot(runID string, computedAt time.Time, ratio float64) *domain.ProjectionSnapshot {
	day0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.ProjectionSnapshot{
		RunID:        runID,
		InstrumentID: "usdy",
		ComputedAt:   computedAt,
		Points: []domain.ProjectedPoint{
			{Date: day0, DayIndex: 0, BackingRatio: ptr(ratio), Discount: ptr(0.99), TrendValue: 1, LinearTrend: 1},
			{Date: day0.AddDate(0, 0, 1), DayIndex: 1, BackingRatio: ptr(ratio + 0.001), TrendValue: 1.001, LinearTrend: 1.001},
			{Date: day0.AddDate(0, 0, 30), DayIndex: 2, TrendValue: 1.002, LinearTrend: 1.002, SineTrend: ptr(1.0025)},
		},
	}
}

func TestProjectionStore_InsertAndGetLatest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProjectionStore(conn)
	ctx := context.Background()

	_, err := store.GetLatest(ctx, "usdy")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertSnapshot(ctx, snapshot("run-a", base, 1.01)))
	require.NoError(t, store.InsertSnapshot(ctx, snapshot("run-b", base.Add(time.Hour), 1.02)))

	got, err := store.GetLatest(ctx, "usdy")
	require.NoError(t, err)
	assert.Equal(t, "run-b", got.RunID)
	assert.True(t, got.ComputedAt.Equal(base.Add(time.Hour)))
	require.Len(t, got.Points, 3)

	assert.InDelta(t, 1.02, *got.Points[0].BackingRatio, 1e-12)
	assert.InDelta(t, 0.99, *got.Points[0].Discount, 1e-12)
	assert.Nil(t, got.Points[1].Discount)
	assert.Nil(t, got.Points[2].BackingRatio)
	assert.InDelta(t, 1.0025, *got.Points[2].SineTrend, 1e-12)
	assert.Equal(t, 2, got.Points[2].DayIndex)
}

func TestProjectionStore_Duplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProjectionStore(conn)
	ctx := context.Background()

	snap := snapshot("run-a", time.Now(), 1.01)
	require.NoError(t, store.InsertSnapshot(ctx, snap))
	assert.ErrorIs(t, store.InsertSnapshot(ctx, snap), storage.ErrDuplicateKey)

	empty := snapshot("run-c", time.Now(), 1)
	empty.Points = nil
	assert.ErrorIs(t, store.InsertSnapshot(ctx, empty), storage.ErrInvalidInput)
}
