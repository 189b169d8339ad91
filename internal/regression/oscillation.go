package regression

import (
	"math"

	"backing-lab/internal/domain"
)

// Oscillator layers a damped sinusoid over an exponential baseline for days
// strictly after the last historical day:
//
//	sine(x) = base(x) + A·sin(f·(x - last) + φ)·damp(x) + offset
//	damp(x) = exp(-rate·(x - dampStart)) for x > dampStart, else 1
type Oscillator struct {
	base    Trend
	cfg     domain.OscillationConfig
	lastDay int
}

// NewOscillator builds a projector over base that starts after lastHistoricalDay.
func NewOscillator(base Trend, cfg domain.OscillationConfig, lastHistoricalDay int) *Oscillator {
	return &Oscillator{base: base, cfg: cfg, lastDay: lastHistoricalDay}
}

// SineTrend returns nil for any day at or before the last historical day.
func (o *Oscillator) SineTrend(dayIndex int) *float64 {
	daysAfterLast := dayIndex - o.lastDay
	if daysAfterLast <= 0 {
		return nil
	}

	wave := o.cfg.Amplitude * math.Sin(o.cfg.Frequency*float64(daysAfterLast)+o.cfg.Phase)
	v := o.base.Calculate(dayIndex) + wave*o.DampeningMultiplier(dayIndex) + o.cfg.Offset
	return &v
}

// DampeningMultiplier decays the wave amplitude once past DampeningStartDay.
func (o *Oscillator) DampeningMultiplier(dayIndex int) float64 {
	if dayIndex <= o.cfg.DampeningStartDay {
		return 1
	}
	return math.Exp(-o.cfg.DampeningRate * float64(dayIndex-o.cfg.DampeningStartDay))
}
