package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Accepted ISO-8601 layouts. Fractional seconds are accepted by time.Parse after
// the seconds field even when the layout omits them.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTime parses an ISO-8601 date-time. Values without a zone are taken as UTC.
// The result is always in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// epochMillisFloor separates epoch seconds from epoch milliseconds.
const epochMillisFloor = 1e12

// parseEpoch converts a numeric epoch value (seconds, or milliseconds when large) to UTC.
func parseEpoch(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if f <= 0 {
		return time.Time{}, fmt.Errorf("non-positive epoch %q", s)
	}
	if f >= epochMillisFloor {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}
