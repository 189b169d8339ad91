package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"backing-lab/internal/domain"
	"backing-lab/internal/normalization"
)

// Field aliases accepted in upstream payloads, in lookup order.
var (
	dateKeys      = []string{"date", "day", "timestamp", "time"}
	payoutKeys    = []string{"payoutPerShareUnit", "payout_per_share_unit", "payout", "dailyYield"}
	trackedKeys   = []string{"trackedPrice", "tracked_price", "price"}
	referenceKeys = []string{"referencePrice", "reference_price", "navPrice", "nav"}
)

// DecodeYields parses a JSON array of yield objects, or an object wrapping one
// under "data". Every field of each object is kept in RawFields.
func DecodeYields(r io.Reader) ([]domain.YieldRecord, normalization.Report, error) {
	rows, err := decodeRows(r)
	if err != nil {
		return nil, normalization.Report{}, err
	}

	raw := make([]normalization.RawYield, len(rows))
	for i, row := range rows {
		raw[i] = normalization.RawYield{
			Date:   lookup(row, dateKeys),
			Payout: lookup(row, payoutKeys),
			Fields: row,
		}
	}
	records, report := normalization.CoerceYields(raw)
	return records, report, nil
}

// DecodePrices parses a JSON array of price objects, or an object wrapping one under "data".
func DecodePrices(r io.Reader) ([]domain.PriceRecord, normalization.Report, error) {
	rows, err := decodeRows(r)
	if err != nil {
		return nil, normalization.Report{}, err
	}

	raw := make([]normalization.RawPrice, len(rows))
	for i, row := range rows {
		raw[i] = normalization.RawPrice{
			Date:      lookup(row, dateKeys),
			Tracked:   lookup(row, trackedKeys),
			Reference: lookup(row, referenceKeys),
		}
	}
	records, report := normalization.CoercePrices(raw)
	return records, report, nil
}

func decodeRows(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return rows, nil
	}

	var wrapped struct {
		Data []map[string]any `json:"data"`
	}
	if err := dec.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return wrapped.Data, nil
}

func lookup(row map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := row[k]; ok {
			return v
		}
	}
	return nil
}
