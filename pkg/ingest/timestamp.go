package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates epoch seconds from epoch milliseconds by
// magnitude: anything at or above 1e12 is milliseconds (1e12 seconds is
// the year 33658).
const millisThreshold = 1e12

// dateLayouts are tried in order for non-numeric timestamp strings.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeTime converts a raw provider timestamp (a JSON number, a
// numeric string, or a date-like string) to an absolute instant. ok is
// false when the value is absent or unparseable; callers substitute the
// current time in that case.
func NormalizeTime(raw json.RawMessage) (time.Time, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	// unquote string tokens; numbers pass through unchanged
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		str = s
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseFloat(str, 64); err == nil {
		return fromEpoch(n), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(n float64) time.Time {
	if n >= millisThreshold || n <= -millisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.UnixMilli(int64(n * 1000)).UTC()
}
