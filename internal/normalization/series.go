package normalization

import (
	"backing-lab/internal/domain"
)

// PriceEntry is the aligned price pair for one calendar day.
type PriceEntry struct {
	TrackedPrice   *float64
	ReferencePrice *float64
}

// RawYield is a yield row as decoded from a source, before numeric coercion.
type RawYield struct {
	Date   any
	Payout any
	Fields map[string]any
}

// RawPrice is a price row as decoded from a source, before numeric coercion.
type RawPrice struct {
	Date      any
	Tracked   any
	Reference any
}

// Report counts locally recovered defects. It is informational only.
type Report struct {
	MalformedFields int // numeric fields coerced to nil
	DroppedRecords  int // records whose date could not be parsed
	DuplicateDays   int // records overwritten by a later same-day record
}

// Add merges other into r.
func (r *Report) Add(other Report) {
	r.MalformedFields += other.MalformedFields
	r.DroppedRecords += other.DroppedRecords
	r.DuplicateDays += other.DuplicateDays
}

// CoerceYields converts raw rows into yield records.
// A malformed payout becomes nil and the day is kept; only undated rows are dropped.
func CoerceYields(rows []RawYield) ([]domain.YieldRecord, Report) {
	var report Report
	records := make([]domain.YieldRecord, 0, len(rows))

	for _, row := range rows {
		date, err := ParseTimestamp(row.Date)
		if err != nil {
			report.DroppedRecords++
			continue
		}
		payout := ParseNumeric(row.Payout)
		if payout == nil {
			report.MalformedFields++
		}
		records = append(records, domain.YieldRecord{
			Date:               date,
			PayoutPerShareUnit: payout,
			RawFields:          row.Fields,
		})
	}

	return records, report
}

// CoercePrices converts raw rows into price records.
func CoercePrices(rows []RawPrice) ([]domain.PriceRecord, Report) {
	var report Report
	records := make([]domain.PriceRecord, 0, len(rows))

	for _, row := range rows {
		date, err := ParseTimestamp(row.Date)
		if err != nil {
			report.DroppedRecords++
			continue
		}
		tracked := ParseNumeric(row.Tracked)
		if tracked == nil {
			report.MalformedFields++
		}
		reference := ParseNumeric(row.Reference)
		if reference == nil {
			report.MalformedFields++
		}
		records = append(records, domain.PriceRecord{
			Date:           date,
			TrackedPrice:   tracked,
			ReferencePrice: reference,
		})
	}

	return records, report
}

// AlignPrices keys price records by calendar day.
// Same-day duplicates resolve last-write-wins in input order. Days absent from
// the input are absent from the map; nothing is interpolated or carried forward.
// Every price field left nil after sanitizing counts as malformed.
func AlignPrices(records []domain.PriceRecord) (map[string]PriceEntry, Report) {
	var report Report
	aligned := make(map[string]PriceEntry, len(records))

	for _, r := range records {
		key := domain.DayKey(r.Date)
		if _, exists := aligned[key]; exists {
			report.DuplicateDays++
		}
		entry := PriceEntry{
			TrackedPrice:   Sanitize(r.TrackedPrice),
			ReferencePrice: Sanitize(r.ReferencePrice),
		}
		if entry.TrackedPrice == nil {
			report.MalformedFields++
		}
		if entry.ReferencePrice == nil {
			report.MalformedFields++
		}
		aligned[key] = entry
	}

	return aligned, report
}

// AlignYields keys yield records by calendar day with the same last-write-wins rule.
func AlignYields(records []domain.YieldRecord) (map[string]domain.YieldRecord, Report) {
	var report Report
	aligned := make(map[string]domain.YieldRecord, len(records))

	for _, r := range records {
		key := domain.DayKey(r.Date)
		if _, exists := aligned[key]; exists {
			report.DuplicateDays++
		}
		r.PayoutPerShareUnit = Sanitize(r.PayoutPerShareUnit)
		aligned[key] = r
	}

	return aligned, report
}
