// Package projection fuses yield and price series into a backing-ratio history
// and extends it with fitted trends over a configured day range.
package projection

import (
	"fmt"
	"time"

	"backing-lab/internal/backing"
	"backing-lab/internal/domain"
	"backing-lab/internal/normalization"
	"backing-lab/internal/regression"
)

// Engine runs one projection configuration. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg         domain.ProjectionConfig
	accumulator *backing.Accumulator
	now         func() time.Time
}

// Option configures Engine.
type Option func(*Engine)

// WithClock sets the clock used to date projected days.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates cfg. A missing or invalid field fails here, before any data is seen.
func NewEngine(cfg domain.ProjectionConfig, opts ...Option) (*Engine, error) {
	acc, err := backing.NewAccumulator(cfg)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:         cfg,
		accumulator: acc,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() domain.ProjectionConfig {
	return e.cfg
}

// Result is the full output of one engine run.
type Result struct {
	Points      []domain.ProjectedPoint
	History     []domain.BackingPoint
	Exponential domain.RegressionModel
	Linear      domain.RegressionModel
	LastDay     int // day index of the last historical point
	Report      normalization.Report
}

// Project computes the unified series for the given raw records.
// Returns *domain.InsufficientDataError when fewer than two historical points exist.
func (e *Engine) Project(yields []domain.YieldRecord, prices []domain.PriceRecord) (*Result, error) {
	aligned, report := normalization.AlignPrices(prices)
	for _, y := range yields {
		if normalization.Sanitize(y.PayoutPerShareUnit) == nil {
			report.MalformedFields++
		}
	}

	history := e.accumulator.Accumulate(yields)
	if len(history) < regression.MinPoints {
		return nil, &domain.InsufficientDataError{Points: len(history), Required: regression.MinPoints}
	}
	backing.ApplyDiscounts(history, aligned)

	exp, err := regression.FitExponential(history, e.cfg.StartDay, e.cfg.CurveIntensity)
	if err != nil {
		return nil, fmt.Errorf("fit exponential: %w", err)
	}
	lin, err := regression.FitLinear(history, e.cfg.StartDay, e.cfg.SlopeMultiplier)
	if err != nil {
		return nil, fmt.Errorf("fit linear: %w", err)
	}

	lastDay := history[len(history)-1].DayIndex
	osc := regression.NewOscillator(exp, e.cfg.Oscillation, lastDay)

	points := BuildSeries(SeriesInput{
		Config:      e.cfg,
		History:     history,
		Exponential: exp,
		Linear:      lin,
		Oscillator:  osc,
		Now:         e.now(),
	})

	return &Result{
		Points:      points,
		History:     history,
		Exponential: exp.Model(),
		Linear:      lin.Model(),
		LastDay:     lastDay,
		Report:      report,
	}, nil
}
