package model

import "time"

// layouts are tried in order after RFC3339 fails outright.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
}

// ParseTimestamp accepts either a raw integer (milliseconds since the Unix
// epoch) or a string, and returns milliseconds since epoch. Strings are
// tried as RFC-3339 first, then the two fallback layouts named in the
// spec. It never panics; unparseable input returns (0, false).
func ParseTimestamp(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		// JSON numbers decode as float64; integral values round-trip exactly
		// for any timestamp in the range this system cares about.
		return int64(t), true
	case string:
		if t == "" {
			return 0, false
		}
		if ts, ok := parseRFC3339Millis(t); ok {
			return ts, true
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UnixMilli(), true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

func parseRFC3339Millis(s string) (int64, bool) {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, false
	}
	return parsed.UnixMilli(), true
}
