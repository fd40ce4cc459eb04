package utils

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// IsValidInterval reports whether interval names a ClickHouse toStartOf* bucket.
func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}

// ParseTimeRange parses optional RFC3339 start/end strings. Missing values
// default to the window of length fallback ending now.
func ParseTimeRange(startParam, endParam string, fallback time.Duration, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if endParam != "" {
		t, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'end' timestamp format, use RFC3339 (e.g. 2006-01-02T15:04:05Z)")
		}
		end = t
	}

	start := end.Add(-fallback)
	if startParam != "" {
		t, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'start' timestamp format, use RFC3339 (e.g. 2006-01-02T15:04:05Z)")
		}
		start = t
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("'start' must not be after 'end'")
	}
	return start, end, nil
}

// Preview returns at most n runes of s.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
