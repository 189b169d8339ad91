package normalization

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseNumeric coerces a raw source value into a finite float.
// Returns nil for anything that is not a usable number: nil, empty or non-numeric
// strings, NaN, ±Inf, booleans, objects. It never returns a pointer to NaN or a
// substituted zero.
func ParseNumeric(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return finitePtr(n)
	case float32:
		return finitePtr(float64(n))
	case int:
		return finitePtr(float64(n))
	case int64:
		return finitePtr(float64(n))
	case *float64:
		if n == nil {
			return nil
		}
		return finitePtr(*n)
	case json.Number:
		return parseNumericString(n.String())
	case string:
		return parseNumericString(n)
	default:
		return nil
	}
}

func parseNumericString(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return finitePtr(f)
}

// Sanitize drops non-finite values that slipped past decoding.
func Sanitize(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return finitePtr(*p)
}

func finitePtr(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
