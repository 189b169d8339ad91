package domain

import (
	"fmt"
	"math"
	"time"
)

// DenominatorMode selects what the backing ratio divides by.
// Token variants disagree on this, so every instrument must choose one explicitly.
type DenominatorMode string

const (
	// DenominatorSupply divides by the total token supply.
	DenominatorSupply DenominatorMode = "supply"
	// DenominatorPrincipal divides by the principal itself.
	DenominatorPrincipal DenominatorMode = "principal"
)

// IsValid checks if the mode is a known value.
func (m DenominatorMode) IsValid() bool {
	return m == DenominatorSupply || m == DenominatorPrincipal
}

// OscillationConfig holds the damped sinusoid constants layered over the exponential trend.
type OscillationConfig struct {
	Amplitude         float64
	Frequency         float64 // radians per day
	Phase             float64 // radians
	Offset            float64
	DampeningRate     float64 // per day, >= 0
	DampeningStartDay int     // day index after which the amplitude decays
}

// ProjectionConfig is the full parameter set of one backing-ratio projection.
type ProjectionConfig struct {
	StartDate time.Time // first day accumulated; also the regression anchor date
	Epoch     time.Time // day index 0; defaults to StartDate

	Principal       float64
	DenominatorMode DenominatorMode
	TokenSupply     float64 // required when DenominatorMode is supply
	SharesHeld      float64

	CurveIntensity  float64 // (0,1], damps the exponential growth rate
	SlopeMultiplier float64 // scales the fitted linear slope

	Oscillation OscillationConfig

	StartDay int // first emitted day index and regression anchor
	EndDay   int // last emitted day index (inclusive)
}

// MaxSeriesDays caps EndDay - StartDay + 1, roughly one hundred years of daily points.
const MaxSeriesDays = 36525

// DefaultProjectionConfig returns a config with every optional field at its default.
// StartDate, Principal, DenominatorMode, SharesHeld and EndDay must still be set.
func DefaultProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		CurveIntensity:  1,
		SlopeMultiplier: 1,
		Oscillation: OscillationConfig{
			Frequency: 2 * math.Pi / 30,
		},
	}
}

// Validate checks required fields and ranges. All failures are *ConfigurationError.
func (c ProjectionConfig) Validate() error {
	if c.StartDate.IsZero() {
		return &ConfigurationError{Field: "startDate", Reason: "required"}
	}
	if !finitePositive(c.Principal) {
		return &ConfigurationError{Field: "principal", Reason: "must be a finite number > 0"}
	}
	if c.DenominatorMode == "" {
		return &ConfigurationError{Field: "denominator", Reason: "required (supply or principal)"}
	}
	if !c.DenominatorMode.IsValid() {
		return &ConfigurationError{Field: "denominator", Reason: "unknown mode " + string(c.DenominatorMode)}
	}
	if c.DenominatorMode == DenominatorSupply && !finitePositive(c.TokenSupply) {
		return &ConfigurationError{Field: "tokenSupply", Reason: "must be a finite number > 0 in supply mode"}
	}
	if !finitePositive(c.SharesHeld) {
		return &ConfigurationError{Field: "sharesHeld", Reason: "must be a finite number > 0"}
	}
	if !(c.CurveIntensity > 0 && c.CurveIntensity <= 1) {
		return &ConfigurationError{Field: "curveIntensity", Reason: "must be in (0,1]"}
	}
	if !finite(c.SlopeMultiplier) {
		return &ConfigurationError{Field: "slopeMultiplier", Reason: "must be finite"}
	}
	o := c.Oscillation
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"amplitude", o.Amplitude},
		{"frequency", o.Frequency},
		{"phase", o.Phase},
		{"offset", o.Offset},
	} {
		if !finite(f.value) {
			return &ConfigurationError{Field: f.name, Reason: "must be finite"}
		}
	}
	if !finite(o.DampeningRate) || o.DampeningRate < 0 {
		return &ConfigurationError{Field: "dampeningRate", Reason: "must be a finite number >= 0"}
	}
	if c.EndDay < c.StartDay {
		return &ConfigurationError{Field: "endDay", Reason: "must be >= startDay"}
	}
	if int64(c.EndDay)-int64(c.StartDay)+1 > MaxSeriesDays {
		return &ConfigurationError{Field: "endDay", Reason: fmt.Sprintf("series may span at most %d days", MaxSeriesDays)}
	}
	return nil
}

// Denominator returns D for the configured mode.
func (c ProjectionConfig) Denominator() float64 {
	if c.DenominatorMode == DenominatorSupply {
		return c.TokenSupply
	}
	return c.Principal
}

// EpochDate returns the calendar day with index 0.
func (c ProjectionConfig) EpochDate() time.Time {
	if c.Epoch.IsZero() {
		return TruncateDay(c.StartDate)
	}
	return TruncateDay(c.Epoch)
}

// DayIndex returns the whole-day offset of t's calendar day from the epoch.
func (c ProjectionConfig) DayIndex(t time.Time) int {
	return int(TruncateDay(t).Sub(c.EpochDate()) / (24 * time.Hour))
}

// DateOf returns the calendar day for a day index.
func (c ProjectionConfig) DateOf(dayIndex int) time.Time {
	return c.EpochDate().AddDate(0, 0, dayIndex)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finitePositive(v float64) bool {
	return finite(v) && v > 0
}
