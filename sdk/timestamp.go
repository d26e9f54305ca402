package sdk

import (
	"fmt"
	"time"
)

// TimeLayout is the ISO-8601 layout used for every timestamp the SDK sends:
// millisecond precision and an explicit numeric offset.
const TimeLayout = "2006-01-02T15:04:05.000-07:00"

// FormatTime renders t in TimeLayout, keeping t's own offset.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime parses an ISO-8601 timestamp with an offset or Z suffix and
// optional fractional seconds. Anything else is an error.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q: %w", s, err)
	}
	return t, nil
}

// normalizeTimes returns v with every time.Time (or *time.Time) nested in
// maps and slices replaced by its TimeLayout string, so property maps and
// engine queries carry the same timestamp encoding as event times.
func normalizeTimes(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return FormatTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return FormatTime(*val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeTimes(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeTimes(item)
		}
		return out
	default:
		return v
	}
}
