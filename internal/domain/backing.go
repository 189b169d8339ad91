package domain

import "time"

// BackingPoint is one historical day of the derived backing series.
type BackingPoint struct {
	Date            time.Time
	DayIndex        int      // offset in days from the configured epoch
	CumulativeYield float64  // running total of daily yield since StartDate
	BackingRatio    float64  // (CumulativeYield + Principal) / Denominator
	Discount        *float64 // tracked/reference price, nil when no valid price pair
}

// ProjectedPoint is one day of the unified historical + projected output series.
type ProjectedPoint struct {
	Date         time.Time `json:"date"`
	DayIndex     int       `json:"dayIndex"`
	BackingRatio *float64  `json:"backingRatio"`
	Discount     *float64  `json:"discount"`
	TrendValue   float64   `json:"trendValue"`
	LinearTrend  float64   `json:"linearTrend"`
	SineTrend    *float64  `json:"sineTrend"`
}

// IsHistorical reports whether the point carries an observed backing ratio.
func (p ProjectedPoint) IsHistorical() bool {
	return p.BackingRatio != nil
}

// RegressionKind identifies a fitted trend model.
type RegressionKind string

const (
	RegressionExponential RegressionKind = "exponential"
	RegressionLinear      RegressionKind = "linear"
)

// RegressionModel describes a fitted model anchored at (AnchorDay, AnchorValue).
// FittedParameters holds the raw OLS slope followed by the applied tuning coefficient
// (curve intensity for exponential, slope multiplier for linear).
type RegressionModel struct {
	Kind             RegressionKind `json:"kind"`
	AnchorDay        int            `json:"anchorDay"`
	AnchorValue      float64        `json:"anchorValue"`
	FittedParameters []float64      `json:"fittedParameters"`
}

// ProjectionSnapshot is one persisted engine run for an instrument.
type ProjectionSnapshot struct {
	RunID        string           `json:"runId"`
	InstrumentID string           `json:"instrumentId"`
	ComputedAt   time.Time        `json:"computedAt"`
	Points       []ProjectedPoint `json:"points"`
}
