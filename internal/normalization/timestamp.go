package normalization

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a raw source date. Strings keep their own offset so the
// calendar day is taken as written; numbers are unix seconds (or milliseconds when
// larger than 1e12) in UTC.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", t)
	case float64:
		return fromUnix(int64(t)), nil
	case int64:
		return fromUnix(t), nil
	case int:
		return fromUnix(int64(t)), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date %q", t.String())
		}
		return fromUnix(n), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}

func fromUnix(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
