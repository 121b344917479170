package trace

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layouts tried in order after the date/time separator has been normalised
// to 'T'. Strings without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ResolveTimestamp parses a span timestamp into Unix milliseconds.
//
// Accepted forms are RFC 3339 / ISO-8601 (zone optional, "T" or space
// between date and time, any fractional precision), "YYYY-MM-DD HH:mm:ss.SSS",
// and a bare number, which is taken as Unix milliseconds already.
//
// Eight digits forming a calendar date ("20250101") are rejected: that is
// the ISO-8601 basic date form, and reading it as milliseconds would place
// the span in January 1970 without any sign of trouble.
func ResolveTimestamp(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	if isBasicDate(s) {
		return 0, fmt.Errorf("%w: %q is an ISO basic date, use YYYY-MM-DD", ErrInvalidTimestamp, raw)
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
		}
		return ms, nil
	}

	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	// "2025-01-01T00:00:00.000 +02:00" style offsets
	if i := strings.LastIndexByte(s, ' '); i > 10 {
		s = s[:i] + s[i+1:]
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// Split to keep integer milliseconds exact; float64 cannot hold
		// UnixNano for current dates without rounding.
		return float64(t.UnixMilli()) + float64(t.Nanosecond()%int(time.Millisecond))/1e6, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

func isBasicDate(s string) bool {
	if len(s) != 8 || strings.Trim(s, "0123456789") != "" {
		return false
	}
	t, err := time.Parse("20060102", s)
	return err == nil && t.Year() >= 1900
}
