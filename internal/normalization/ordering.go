package normalization

import (
	"sort"

	"backing-lab/internal/domain"
)

// SortYieldRecords orders records by Date ASC. Stable, so same-day records keep input order.
func SortYieldRecords(records []domain.YieldRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
}

// SortPriceRecords orders records by Date ASC. Stable, so same-day records keep input order.
func SortPriceRecords(records []domain.PriceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
}

// SortedDayKeys returns the keys of a day-keyed map in ascending order.
// ISO day keys sort lexically in calendar order.
func SortedDayKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
