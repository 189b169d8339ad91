// Package backing derives the historical backing-ratio series from aligned yield
// and price data.
package backing

import (
	"time"

	"github.com/shopspring/decimal"

	"backing-lab/internal/domain"
	"backing-lab/internal/normalization"
)

// ratioDigits is the number of significant decimal digits kept in a backing ratio.
const ratioDigits = 24

// Accumulator walks the yield series from StartDate and produces one BackingPoint
// per calendar day up to the latest yield day.
type Accumulator struct {
	cfg       domain.ProjectionConfig
	start     time.Time
	shares    decimal.Decimal
	principal decimal.Decimal
	denom     decimal.Decimal
	precision int32 // decimal places for the ratio division
}

// NewAccumulator validates cfg and fails fast on missing fields.
func NewAccumulator(cfg domain.ProjectionConfig) (*Accumulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	denom := decimal.NewFromFloat(cfg.Denominator())
	return &Accumulator{
		cfg:       cfg,
		start:     domain.TruncateDay(cfg.StartDate),
		shares:    decimal.NewFromFloat(cfg.SharesHeld),
		principal: decimal.NewFromFloat(cfg.Principal),
		denom:     denom,
		precision: divisionPrecision(denom),
	}, nil
}

// divisionPrecision scales the decimal places of n/d with the magnitude of d, so
// a ratio keeps ratioDigits significant digits for numerators of at least 1
// however large the denominator is.
func divisionPrecision(d decimal.Decimal) int32 {
	magnitude := int32(d.NumDigits()) + d.Exponent()
	if magnitude < 0 {
		magnitude = 0
	}
	return ratioDigits + magnitude
}

// Accumulate computes cumulative yield and backing ratio per day.
//
//	dailyYield[n]      = payout[n] * SharesHeld   (missing payout counts as 0)
//	cumulativeYield[n] = cumulativeYield[n-1] + dailyYield[n]
//	backingRatio[n]    = (cumulativeYield[n] + Principal) / Denominator
//
// Calendar days without a record are emitted with zero daily yield so the series
// has no holes. Discount is left nil; see ApplyDiscounts.
func (a *Accumulator) Accumulate(yields []domain.YieldRecord) []domain.BackingPoint {
	aligned, _ := normalization.AlignYields(yields)

	keys := normalization.SortedDayKeys(aligned)
	if len(keys) == 0 || keys[len(keys)-1] < domain.DayKey(a.start) {
		return nil
	}
	lastKey := keys[len(keys)-1]
	last, err := domain.ParseDay(lastKey)
	if err != nil {
		return nil
	}

	var points []domain.BackingPoint
	cumulative := decimal.Zero

	for day := a.start; !day.After(last); day = day.AddDate(0, 0, 1) {
		daily := decimal.Zero
		if rec, ok := aligned[domain.DayKey(day)]; ok && rec.PayoutPerShareUnit != nil {
			daily = decimal.NewFromFloat(*rec.PayoutPerShareUnit).Mul(a.shares)
		}
		cumulative = cumulative.Add(daily)
		ratio := cumulative.Add(a.principal).DivRound(a.denom, a.precision)

		cumF, _ := cumulative.Float64()
		ratioF, _ := ratio.Float64()
		points = append(points, domain.BackingPoint{
			Date:            day,
			DayIndex:        a.cfg.DayIndex(day),
			CumulativeYield: cumF,
			BackingRatio:    ratioF,
		})
	}

	return points
}
