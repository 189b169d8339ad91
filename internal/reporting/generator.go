package reporting

import (
	"context"
	"fmt"
	"time"

	"backing-lab/internal/domain"
	"backing-lab/internal/projection"
	"backing-lab/internal/storage"
)

// DefaultRecentRuns is how many refresh runs a stored report lists.
const DefaultRecentRuns = 10

// Generator produces reports from stored snapshots.
type Generator struct {
	projectionStore storage.ProjectionStore
	runStore        storage.RefreshRunStore
	recentRuns      int
	now             func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. runStore may be nil.
func NewGenerator(projectionStore storage.ProjectionStore, runStore storage.RefreshRunStore) *Generator {
	return &Generator{
		projectionStore: projectionStore,
		runStore:        runStore,
		recentRuns:      DefaultRecentRuns,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report from the latest stored snapshot of inst.
func (g *Generator) Generate(ctx context.Context, inst domain.Instrument) (*Report, error) {
	snap, err := g.projectionStore.GetLatest(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", inst.ID, err)
	}

	r := &Report{
		GeneratedAt:    g.now(),
		InstrumentID:   inst.ID,
		InstrumentName: inst.Name,
		RunID:          snap.RunID,
		ComputedAt:     snap.ComputedAt,
		Summary:        Summarize(snap.Points),
		Points:         snap.Points,
	}

	if g.runStore != nil {
		runs, err := g.runStore.ListByInstrument(ctx, inst.ID, g.recentRuns)
		if err != nil {
			return nil, fmt.Errorf("load runs for %s: %w", inst.ID, err)
		}
		r.DataQuality.RecentRuns = runRows(runs)
	}

	return r, nil
}

// FromResult builds a report directly from an engine run, including the fitted models.
func FromResult(inst domain.Instrument, res *projection.Result, generatedAt time.Time) *Report {
	return &Report{
		GeneratedAt:    generatedAt,
		InstrumentID:   inst.ID,
		InstrumentName: inst.Name,
		ComputedAt:     generatedAt,
		Summary:        Summarize(res.Points),
		DataQuality: DataQualitySection{
			MalformedFields: res.Report.MalformedFields,
			DroppedRecords:  res.Report.DroppedRecords,
			DuplicateDays:   res.Report.DuplicateDays,
		},
		Models: []domain.RegressionModel{res.Exponential, res.Linear},
		Points: res.Points,
	}
}

func runRows(runs []*domain.RefreshRun) []RunRow {
	rows := make([]RunRow, len(runs))
	for i, run := range runs {
		rows[i] = RunRow{
			RunID:     run.RunID,
			StartedAt: run.StartedAt,
			Status:    run.Status,
			Points:    run.Points,
			Error:     run.Error,
		}
	}
	return rows
}
