package regression

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backing-lab/internal/domain"
)

func seriesFrom(startDay, n int, f func(x int) float64) []domain.BackingPoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.BackingPoint, n)
	for i := 0; i < n; i++ {
		points[i] = domain.BackingPoint{
			Date:         base.AddDate(0, 0, i),
			DayIndex:     startDay + i,
			BackingRatio: f(i),
		}
	}
	return points
}

func TestFitExponential_RecoversRate(t *testing.T) {
	points := seriesFrom(10, 60, func(x int) float64 { return math.Exp(0.001 * float64(x)) })

	exp, err := FitExponential(points, 10, 1)
	require.NoError(t, err)

	m := exp.Model()
	assert.Equal(t, domain.RegressionExponential, m.Kind)
	assert.Equal(t, 10, m.AnchorDay)
	assert.Equal(t, 1.0, m.AnchorValue)
	assert.InDelta(t, 0.001, m.FittedParameters[0], 1e-12)
	assert.InDelta(t, math.Exp(0.1), exp.Calculate(110), 1e-9)
}

func TestFitExponential_CurveIntensityDampsGrowth(t *testing.T) {
	points := seriesFrom(0, 30, func(x int) float64 { return math.Exp(0.002 * float64(x)) })

	full, err := FitExponential(points, 0, 1)
	require.NoError(t, err)
	half, err := FitExponential(points, 0, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, math.Exp(0.002*365*0.5), half.Calculate(365), 1e-9)
	assert.Less(t, half.Calculate(365), full.Calculate(365))
}

func TestFitExponential_DiscardsIntercept(t *testing.T) {
	// Data sits at 1.05·e^{0.001x}: textbook OLS would give intercept ln(1.05),
	// the anchored model still passes through 1 with the same slope.
	points := seriesFrom(0, 40, func(x int) float64 { return 1.05 * math.Exp(0.001*float64(x)) })

	exp, err := FitExponential(points, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, exp.Calculate(0))
	assert.InDelta(t, 0.001, exp.Model().FittedParameters[0], 1e-12)
}

func TestFitLinear_RecoversSlopeAndAppliesMultiplier(t *testing.T) {
	points := seriesFrom(0, 20, func(x int) float64 { return 1 + 0.002*float64(x) })

	lin, err := FitLinear(points, 0, 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.002, lin.Model().FittedParameters[0], 1e-12)
	assert.Equal(t, 2.0, lin.Model().FittedParameters[1])
	assert.InDelta(t, 1.04, lin.Calculate(10), 1e-12)
}

func TestFits_AnchorIsExactlyOne(t *testing.T) {
	points := seriesFrom(5, 10, func(x int) float64 { return 1.3 + 0.01*float64(x*x) })

	for _, anchor := range []int{-100, 0, 5, 17, 1000} {
		exp, err := FitExponential(points, anchor, 0.7)
		require.NoError(t, err)
		lin, err := FitLinear(points, anchor, 3)
		require.NoError(t, err)

		assert.Equal(t, 1.0, exp.Calculate(anchor))
		assert.Equal(t, 1.0, lin.Calculate(anchor))
	}
}

func TestFits_InsufficientData(t *testing.T) {
	one := seriesFrom(0, 1, func(int) float64 { return 1.01 })

	_, err := FitExponential(one, 0, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	_, err = FitLinear(one, 0, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	_, err = FitLinear(nil, 0, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	// Non-positive ratios have no log; two points but only one usable.
	mixed := seriesFrom(0, 2, func(x int) float64 { return float64(x) })
	_, err = FitExponential(mixed, 0, 1)
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Points)
}

func TestOscillator_NilUpToLastDay(t *testing.T) {
	base := &Exponential{anchorDay: 0, slope: 0, curveIntensity: 1}
	osc := NewOscillator(base, domain.OscillationConfig{Amplitude: 0.1, Frequency: 1}, 50)

	assert.Nil(t, osc.SineTrend(0))
	assert.Nil(t, osc.SineTrend(50))
	assert.NotNil(t, osc.SineTrend(51))
}

func TestOscillator_Formula(t *testing.T) {
	base := &Exponential{anchorDay: 0, slope: 0.001, curveIntensity: 1}
	cfg := domain.OscillationConfig{
		Amplitude:         0.02,
		Frequency:         0.3,
		Phase:             0.5,
		Offset:            0.01,
		DampeningRate:     0.05,
		DampeningStartDay: 60,
	}
	osc := NewOscillator(base, cfg, 50)

	// Before dampening starts.
	got := osc.SineTrend(55)
	require.NotNil(t, got)
	want := math.Exp(0.055) + 0.02*math.Sin(0.3*5+0.5) + 0.01
	assert.InDelta(t, want, *got, 1e-12)

	// After dampening starts.
	got = osc.SineTrend(70)
	require.NotNil(t, got)
	want = math.Exp(0.070) + 0.02*math.Sin(0.3*20+0.5)*math.Exp(-0.05*10) + 0.01
	assert.InDelta(t, want, *got, 1e-12)

	assert.Equal(t, 1.0, osc.DampeningMultiplier(60))
}

func TestOscillator_DampingBound(t *testing.T) {
	base := &Exponential{anchorDay: 0, slope: 0.0005, curveIntensity: 1}
	cfg := domain.OscillationConfig{
		Amplitude:         0.5,
		Frequency:         0.2,
		Offset:            0.03,
		DampeningRate:     0.1,
		DampeningStartDay: 100,
	}
	osc := NewOscillator(base, cfg, 10)

	prev := math.Inf(1)
	for _, day := range []int{150, 300, 600, 1200} {
		v := osc.SineTrend(day)
		require.NotNil(t, v)
		residual := math.Abs(*v - base.Calculate(day) - cfg.Offset)
		bound := cfg.Amplitude * osc.DampeningMultiplier(day)
		assert.LessOrEqual(t, residual, bound+1e-12)
		assert.Less(t, bound, prev)
		prev = bound
	}
	assert.Less(t, osc.DampeningMultiplier(1200), 1e-40)
}
