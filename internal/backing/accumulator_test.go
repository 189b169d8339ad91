package backing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backing-lab/internal/domain"
	"backing-lab/internal/normalization"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func testConfig() domain.ProjectionConfig {
	cfg := domain.DefaultProjectionConfig()
	cfg.StartDate = day0
	cfg.Principal = 1_000_000
	cfg.DenominatorMode = domain.DenominatorPrincipal
	cfg.SharesHeld = 100
	cfg.EndDay = 30
	return cfg
}

func yieldsFor(payouts ...float64) []domain.YieldRecord {
	out := make([]domain.YieldRecord, len(payouts))
	for i, p := range payouts {
		out[i] = domain.YieldRecord{Date: day0.AddDate(0, 0, i), PayoutPerShareUnit: ptr(p)}
	}
	return out
}

func TestNewAccumulator_FailsFastWithoutStartDate(t *testing.T) {
	cfg := testConfig()
	cfg.StartDate = time.Time{}

	acc, err := NewAccumulator(cfg)
	assert.Nil(t, acc)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAccumulate_ExampleScenario(t *testing.T) {
	acc, err := NewAccumulator(testConfig())
	require.NoError(t, err)

	points := acc.Accumulate(yieldsFor(0.01, 0.01))

	require.Len(t, points, 2)
	assert.Equal(t, 1.0, points[0].CumulativeYield)
	assert.Equal(t, 2.0, points[1].CumulativeYield)
	assert.Equal(t, 1.000001, points[0].BackingRatio)
	assert.Equal(t, 1.000002, points[1].BackingRatio)
	assert.Equal(t, 0, points[0].DayIndex)
	assert.Equal(t, 1, points[1].DayIndex)
}

func TestAccumulate_ClosedForm(t *testing.T) {
	cfg := testConfig()
	cfg.Principal = 1000
	cfg.DenominatorMode = domain.DenominatorSupply
	cfg.TokenSupply = 800
	cfg.SharesHeld = 8

	const k, n = 0.25, 10
	payouts := make([]float64, n)
	for i := range payouts {
		payouts[i] = k
	}

	acc, err := NewAccumulator(cfg)
	require.NoError(t, err)
	points := acc.Accumulate(yieldsFor(payouts...))
	require.Len(t, points, n)

	// (n·k·S + P0) / D
	want, _ := decimal.NewFromFloat(n * k * 8).Add(decimal.NewFromInt(1000)).Div(decimal.NewFromInt(800)).Float64()
	assert.Equal(t, want, points[n-1].BackingRatio)
	assert.Equal(t, 1.275, points[n-1].BackingRatio)
}

func TestAccumulate_ClosedFormLargeSupply(t *testing.T) {
	for _, supply := range []float64{1e10, 1e18, 1e20, 1e30} {
		cfg := testConfig()
		cfg.Principal = 1000
		cfg.DenominatorMode = domain.DenominatorSupply
		cfg.TokenSupply = supply
		cfg.SharesHeld = 1

		const k = 0.000123
		acc, err := NewAccumulator(cfg)
		require.NoError(t, err)
		points := acc.Accumulate(yieldsFor(k, k, k))
		require.Len(t, points, 3)

		for i, p := range points {
			want := (float64(i+1)*k + 1000) / supply
			require.Greater(t, p.BackingRatio, 0.0, "supply %g day %d", supply, i)
			assert.InEpsilon(t, want, p.BackingRatio, 1e-12, "supply %g day %d", supply, i)
		}
		assert.Greater(t, points[2].BackingRatio, points[0].BackingRatio)
	}
}

func TestDivisionPrecision(t *testing.T) {
	assert.Equal(t, int32(ratioDigits+1), divisionPrecision(decimal.NewFromInt(8)))
	assert.Equal(t, int32(ratioDigits+21), divisionPrecision(decimal.NewFromFloat(1e20)))
	assert.Equal(t, int32(ratioDigits), divisionPrecision(decimal.NewFromFloat(0.5)))
}

func TestAccumulate_FiltersBeforeStartAndSorts(t *testing.T) {
	acc, err := NewAccumulator(testConfig())
	require.NoError(t, err)

	records := []domain.YieldRecord{
		{Date: day0.AddDate(0, 0, 2), PayoutPerShareUnit: ptr(0.03)},
		{Date: day0.AddDate(0, 0, -5), PayoutPerShareUnit: ptr(100)},
		{Date: day0, PayoutPerShareUnit: ptr(0.01)},
	}

	points := acc.Accumulate(records)

	require.Len(t, points, 3, "gap day 1 is retained")
	assert.Equal(t, []float64{1, 1, 4}, []float64{
		points[0].CumulativeYield, points[1].CumulativeYield, points[2].CumulativeYield,
	})
}

func TestAccumulate_MalformedPayoutCountsAsZero(t *testing.T) {
	acc, err := NewAccumulator(testConfig())
	require.NoError(t, err)

	records := yieldsFor(0.01, 0, 0.01)
	records[1].PayoutPerShareUnit = nil

	points := acc.Accumulate(records)

	require.Len(t, points, 3)
	assert.Equal(t, 1.0, points[1].CumulativeYield)
	assert.Equal(t, 2.0, points[2].CumulativeYield)
}

func TestAccumulate_NoDataAfterStart(t *testing.T) {
	acc, err := NewAccumulator(testConfig())
	require.NoError(t, err)

	points := acc.Accumulate([]domain.YieldRecord{
		{Date: day0.AddDate(0, 0, -1), PayoutPerShareUnit: ptr(1)},
	})
	assert.Empty(t, points)
}

func TestAccumulate_MonotonicForNonNegativePayouts(t *testing.T) {
	acc, err := NewAccumulator(testConfig())
	require.NoError(t, err)

	points := acc.Accumulate(yieldsFor(0.02, 0, 0.5, 0.001, 0, 0, 3))
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].BackingRatio, points[i-1].BackingRatio)
		assert.GreaterOrEqual(t, points[i].CumulativeYield, points[i-1].CumulativeYield)
	}
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name      string
		tracked   *float64
		reference *float64
		want      *float64
	}{
		{"valid pair", ptr(0.95), ptr(1.0), ptr(0.95)},
		{"zero reference", ptr(0.95), ptr(0), nil},
		{"negative reference", ptr(0.95), ptr(-1), nil},
		{"nil reference", ptr(0.95), nil, nil},
		{"nil tracked", nil, ptr(1), nil},
		{"zero tracked", ptr(0), ptr(1), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(normalization.PriceEntry{TrackedPrice: tt.tracked, ReferencePrice: tt.reference})
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-12)
		})
	}
}

func TestApplyDiscounts(t *testing.T) {
	points := []domain.BackingPoint{
		{Date: day0, DayIndex: 0},
		{Date: day0.AddDate(0, 0, 1), DayIndex: 1},
		{Date: day0.AddDate(0, 0, 2), DayIndex: 2},
	}
	prices := map[string]normalization.PriceEntry{
		"2024-01-01": {TrackedPrice: ptr(2), ReferencePrice: ptr(4)},
		"2024-01-03": {TrackedPrice: ptr(2), ReferencePrice: ptr(0)},
	}

	ApplyDiscounts(points, prices)

	require.NotNil(t, points[0].Discount)
	assert.Equal(t, 0.5, *points[0].Discount)
	assert.Nil(t, points[1].Discount, "absent price day")
	assert.Nil(t, points[2].Discount, "zero reference price")
}
