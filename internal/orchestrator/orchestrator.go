// Package orchestrator runs refreshes: fetch → persist → project → snapshot.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
	"backing-lab/internal/observability"
	"backing-lab/internal/projection"
	"backing-lab/internal/sources"
	"backing-lab/internal/storage"
)

// ErrUnknownInstrument is returned for an instrument ID that is not configured.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Orchestrator coordinates refreshes for a fixed set of instruments.
type Orchestrator struct {
	// Sources
	yieldSource sources.YieldSource
	priceSource sources.PriceSource

	// Stores
	yieldStore      storage.YieldRecordStore
	priceStore      storage.PriceRecordStore
	projectionStore storage.ProjectionStore
	runStore        storage.RefreshRunStore

	instruments []domain.Instrument
	engines     map[string]*projection.Engine
	locks       map[string]*sync.Mutex // one refresh per instrument at a time

	concurrency int
	now         func() time.Time
	newRunID    func() string
	log         *logger.Entry
}

// Options for creating Orchestrator.
type Options struct {
	// Required sources
	YieldSource sources.YieldSource
	PriceSource sources.PriceSource

	// Required stores
	YieldStore      storage.YieldRecordStore
	PriceStore      storage.PriceRecordStore
	ProjectionStore storage.ProjectionStore
	RunStore        storage.RefreshRunStore

	Instruments []domain.Instrument

	// Options
	Concurrency int              // parallel refreshes in RefreshAll, default 1
	Clock       func() time.Time // defaults to time.Now
	Logger      *logger.Log
}

// New creates an Orchestrator. Every instrument's projection config is validated here.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.YieldSource == nil || opts.PriceSource == nil:
		return nil, errors.New("orchestrator: yield and price sources are required")
	case opts.YieldStore == nil || opts.PriceStore == nil || opts.ProjectionStore == nil || opts.RunStore == nil:
		return nil, errors.New("orchestrator: all stores are required")
	}

	o := &Orchestrator{
		yieldSource:     opts.YieldSource,
		priceSource:     opts.PriceSource,
		yieldStore:      opts.YieldStore,
		priceStore:      opts.PriceStore,
		projectionStore: opts.ProjectionStore,
		runStore:        opts.RunStore,
		engines:         make(map[string]*projection.Engine, len(opts.Instruments)),
		locks:           make(map[string]*sync.Mutex, len(opts.Instruments)),
		concurrency:     opts.Concurrency,
		now:             opts.Clock,
		newRunID:        uuid.NewString,
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.now == nil {
		o.now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	o.log = log.WithComponent("orchestrator")

	for _, inst := range opts.Instruments {
		if _, dup := o.engines[inst.ID]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate instrument %q", inst.ID)
		}
		engine, err := projection.NewEngine(inst.Projection, projection.WithClock(o.now))
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", inst.ID, err)
		}
		o.engines[inst.ID] = engine
		o.locks[inst.ID] = &sync.Mutex{}
		o.instruments = append(o.instruments, inst)
	}

	return o, nil
}

// Instruments returns the configured instruments in configuration order.
func (o *Orchestrator) Instruments() []domain.Instrument {
	return append([]domain.Instrument(nil), o.instruments...)
}

// Instrument looks up a configured instrument.
func (o *Orchestrator) Instrument(id string) (domain.Instrument, error) {
	for _, inst := range o.instruments {
		if inst.ID == id {
			return inst, nil
		}
	}
	return domain.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, id)
}

// Latest returns the newest stored snapshot for an instrument.
func (o *Orchestrator) Latest(ctx context.Context, id string) (*domain.ProjectionSnapshot, error) {
	if _, err := o.Instrument(id); err != nil {
		return nil, err
	}
	return o.projectionStore.GetLatest(ctx, id)
}

// Runs returns up to limit refresh runs for an instrument, newest first.
func (o *Orchestrator) Runs(ctx context.Context, id string, limit int) ([]*domain.RefreshRun, error) {
	if _, err := o.Instrument(id); err != nil {
		return nil, err
	}
	return o.runStore.ListByInstrument(ctx, id, limit)
}

// Outcome is the result of one successful refresh.
type Outcome struct {
	Run      *domain.RefreshRun
	Snapshot *domain.ProjectionSnapshot
	Result   *projection.Result
}

// Refresh fetches, persists and projects one instrument.
// A fetch failure aborts before anything is computed or stored.
// Every attempt, failed or not, is recorded in the run store.
func (o *Orchestrator) Refresh(ctx context.Context, id string) (*Outcome, error) {
	inst, err := o.Instrument(id)
	if err != nil {
		return nil, err
	}

	mu := o.locks[id]
	mu.Lock()
	defer mu.Unlock()

	run := &domain.RefreshRun{
		RunID:        o.newRunID(),
		InstrumentID: id,
		StartedAt:    o.now().UTC(),
	}
	log := o.log.WithFields(logger.Fields{"instrument": id, "run_id": run.RunID})
	log.Info("refresh started")

	out, status, err := o.refresh(ctx, inst, run, log)
	o.finish(run, status, err, log)
	if err != nil {
		return nil, err
	}
	out.Run = run
	return out, nil
}

func (o *Orchestrator) refresh(ctx context.Context, inst domain.Instrument, run *domain.RefreshRun, log *logger.Entry) (*Outcome, domain.RunStatus, error) {
	// Phase 1: fetch both series
	yields, prices, err := sources.FetchSeries(ctx, o.yieldSource, o.priceSource, inst)
	if err != nil {
		return nil, domain.RunFetchFailed, err
	}
	run.YieldsFetched = len(yields)
	run.PricesFetched = len(prices)

	// Phase 2: persist raw records
	newYields, err := o.timedInsertYields(ctx, inst.ID, yields)
	if err != nil {
		return nil, domain.RunFailed, fmt.Errorf("persist yields: %w", err)
	}
	newPrices, err := o.timedInsertPrices(ctx, inst.ID, prices)
	if err != nil {
		return nil, domain.RunFailed, fmt.Errorf("persist prices: %w", err)
	}
	log.WithFields(logger.Fields{"new_yield_days": newYields, "new_price_days": newPrices}).Debug("records persisted")

	// Phase 3: project over the stored history from StartDate to today
	from, to := inst.Projection.StartDate, o.now()
	histYields, err := o.yieldStore.GetByDayRange(ctx, inst.ID, from, to)
	if err != nil {
		return nil, domain.RunFailed, fmt.Errorf("load yields: %w", err)
	}
	histPrices, err := o.priceStore.GetByDayRange(ctx, inst.ID, from, to)
	if err != nil {
		return nil, domain.RunFailed, fmt.Errorf("load prices: %w", err)
	}

	res, err := o.engines[inst.ID].Project(histYields, histPrices)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			return nil, domain.RunInsufficientData, err
		}
		return nil, domain.RunFailed, err
	}
	run.Points = len(res.Points)

	// Phase 4: persist snapshot
	snap := &domain.ProjectionSnapshot{
		RunID:        run.RunID,
		InstrumentID: inst.ID,
		ComputedAt:   o.now().UTC(),
		Points:       res.Points,
	}
	if err := o.projectionStore.InsertSnapshot(ctx, snap); err != nil {
		return nil, domain.RunFailed, fmt.Errorf("persist snapshot: %w", err)
	}

	if n := len(res.History); n > 0 {
		last := res.History[n-1]
		observability.UpdateProjection(inst.ID, len(res.Points), last.BackingRatio, last.Discount)
	}
	observability.RecordRefreshSuccess(inst.ID, float64(snap.ComputedAt.Unix()))

	return &Outcome{Snapshot: snap, Result: res}, domain.RunSucceeded, nil
}

// finish stamps and stores the run. A run store failure is logged, never returned.
func (o *Orchestrator) finish(run *domain.RefreshRun, status domain.RunStatus, err error, log *logger.Entry) {
	run.FinishedAt = o.now().UTC()
	run.Status = status
	if err != nil {
		run.Error = err.Error()
	}

	duration := run.FinishedAt.Sub(run.StartedAt)
	observability.RecordRefresh(run.InstrumentID, string(status), duration.Seconds())

	// The audit row is written even when the refresh context was canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if storeErr := o.runStore.Insert(ctx, run); storeErr != nil {
		log.WithError(storeErr).Error("failed to record refresh run")
	}

	fields := logger.Fields{"status": status, "points": run.Points}
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("refresh failed")
		return
	}
	logger.LogDuration(log, "refresh", duration, fields)
}

func (o *Orchestrator) timedInsertYields(ctx context.Context, id string, records []domain.YieldRecord) (int, error) {
	start := time.Now()
	n, err := o.yieldStore.InsertBulk(ctx, id, records)
	observability.RecordDBQuery("yield_records", "insert_bulk", time.Since(start).Seconds(), err)
	return n, err
}

func (o *Orchestrator) timedInsertPrices(ctx context.Context, id string, records []domain.PriceRecord) (int, error) {
	start := time.Now()
	n, err := o.priceStore.InsertBulk(ctx, id, records)
	observability.RecordDBQuery("price_records", "insert_bulk", time.Since(start).Seconds(), err)
	return n, err
}

// RunResult summarizes a RefreshAll pass.
type RunResult struct {
	Instruments int
	Succeeded   int
	Errors      []string // "<instrument>: <error>", sorted
}

// RefreshAll refreshes every instrument. Individual failures are collected, not returned;
// the error is non-nil only when ctx ends.
func (o *Orchestrator) RefreshAll(ctx context.Context) (*RunResult, error) {
	result := &RunResult{Instruments: len(o.instruments)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, inst := range o.instruments {
		g.Go(func() error {
			_, err := o.Refresh(gctx, inst.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", inst.ID, err))
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(result.Errors)

	o.log.WithFields(logger.Fields{
		"instruments": result.Instruments,
		"succeeded":   result.Succeeded,
		"failed":      len(result.Errors),
	}).Info("refresh pass completed")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
