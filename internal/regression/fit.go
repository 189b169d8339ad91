// Package regression fits anchored trend models to a backing-ratio series and
// projects them past the last observed day.
package regression

import (
	"math"

	"backing-lab/internal/domain"
)

// MinPoints is the smallest historical set a trend can be fit to.
const MinPoints = 2

// Trend is a fitted model evaluated at a day index.
type Trend interface {
	Calculate(dayIndex int) float64
	Model() domain.RegressionModel
}

// Exponential is exp(a·x·curveIntensity) with x = dayIndex - anchorDay.
// The OLS intercept of ln(y) is discarded and fixed at ln(1) = 0 so the curve
// passes through (anchorDay, 1); only the slope is taken from the data.
type Exponential struct {
	anchorDay      int
	slope          float64
	curveIntensity float64
}

// FitExponential regresses ln(backingRatio) on x over the whole historical set.
// Points with a non-positive ratio have no logarithm and are skipped.
func FitExponential(points []domain.BackingPoint, anchorDay int, curveIntensity float64) (*Exponential, error) {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if !(p.BackingRatio > 0) || math.IsInf(p.BackingRatio, 0) {
			continue
		}
		xs = append(xs, float64(p.DayIndex-anchorDay))
		ys = append(ys, math.Log(p.BackingRatio))
	}

	slope, ok := olsSlope(xs, ys)
	if !ok {
		return nil, &domain.InsufficientDataError{Points: len(xs), Required: MinPoints}
	}

	return &Exponential{anchorDay: anchorDay, slope: slope, curveIntensity: curveIntensity}, nil
}

// Calculate evaluates the curve. Calculate(anchorDay) is exactly 1.
func (e *Exponential) Calculate(dayIndex int) float64 {
	x := float64(dayIndex - e.anchorDay)
	return math.Exp(e.slope * x * e.curveIntensity)
}

// Model describes the fit.
func (e *Exponential) Model() domain.RegressionModel {
	return domain.RegressionModel{
		Kind:             domain.RegressionExponential,
		AnchorDay:        e.anchorDay,
		AnchorValue:      1,
		FittedParameters: []float64{e.slope, e.curveIntensity},
	}
}

// Linear is 1 + a·slopeMultiplier·x with x = dayIndex - anchorDay.
type Linear struct {
	anchorDay       int
	slope           float64
	slopeMultiplier float64
}

// FitLinear regresses backingRatio on x over the whole historical set.
// The intercept is fixed at the anchor value 1.
func FitLinear(points []domain.BackingPoint, anchorDay int, slopeMultiplier float64) (*Linear, error) {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.BackingRatio) || math.IsInf(p.BackingRatio, 0) {
			continue
		}
		xs = append(xs, float64(p.DayIndex-anchorDay))
		ys = append(ys, p.BackingRatio)
	}

	slope, ok := olsSlope(xs, ys)
	if !ok {
		return nil, &domain.InsufficientDataError{Points: len(xs), Required: MinPoints}
	}

	return &Linear{anchorDay: anchorDay, slope: slope, slopeMultiplier: slopeMultiplier}, nil
}

// Calculate evaluates the line. Calculate(anchorDay) is exactly 1.
func (l *Linear) Calculate(dayIndex int) float64 {
	x := float64(dayIndex - l.anchorDay)
	return 1 + l.slope*l.slopeMultiplier*x
}

// Model describes the fit.
func (l *Linear) Model() domain.RegressionModel {
	return domain.RegressionModel{
		Kind:             domain.RegressionLinear,
		AnchorDay:        l.anchorDay,
		AnchorValue:      1,
		FittedParameters: []float64{l.slope, l.slopeMultiplier},
	}
}

// olsSlope returns the ordinary least-squares slope Sxy/Sxx.
// ok is false with fewer than MinPoints points or when x has no variance.
func olsSlope(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n < MinPoints {
		return 0, false
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}
	if sxx == 0 {
		return 0, false
	}

	slope := sxy / sxx
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, false
	}
	return slope, true
}
