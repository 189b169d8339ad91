package domain

import "time"

// DayLayout is the canonical ISO calendar-day key format.
const DayLayout = "2006-01-02"

// YieldRecord is one day of protocol yield accrual as delivered by a daily-stats source.
type YieldRecord struct {
	Date               time.Time      `json:"date"`                // truncated to its own calendar day when keyed
	PayoutPerShareUnit *float64       `json:"payoutPerShareUnit"`  // nil when missing or malformed
	RawFields          map[string]any `json:"rawFields,omitempty"` // untouched source payload
}

// PriceRecord is one day of market prices for the tracked and reference tokens.
type PriceRecord struct {
	Date           time.Time `json:"date"`
	TrackedPrice   *float64  `json:"trackedPrice"`   // nil when missing or malformed
	ReferencePrice *float64  `json:"referencePrice"` // nil when missing or malformed
}

// DayKey returns the ISO day of t in t's own location.
// Sources are not UTC-normalized; the calendar day as written is what aligns series.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// TruncateDay returns midnight UTC of t's calendar day (in t's own location).
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO day key into midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DayLayout, s)
}
