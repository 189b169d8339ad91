package backing

import (
	"math"

	"backing-lab/internal/domain"
	"backing-lab/internal/normalization"
)

// Discount returns trackedPrice / referencePrice when both are finite and positive.
// Any other combination is "no signal" and yields nil.
func Discount(p normalization.PriceEntry) *float64 {
	if p.TrackedPrice == nil || p.ReferencePrice == nil {
		return nil
	}
	tracked, reference := *p.TrackedPrice, *p.ReferencePrice
	if !(tracked > 0) || !(reference > 0) {
		return nil
	}
	d := tracked / reference
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return nil
	}
	return &d
}

// ApplyDiscounts sets Discount on every point whose day has a price entry.
// Days absent from prices keep a nil discount.
func ApplyDiscounts(points []domain.BackingPoint, prices map[string]normalization.PriceEntry) {
	for i := range points {
		entry, ok := prices[domain.DayKey(points[i].Date)]
		if !ok {
			points[i].Discount = nil
			continue
		}
		points[i].Discount = Discount(entry)
	}
}
