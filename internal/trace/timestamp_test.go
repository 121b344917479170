package trace

import (
	"errors"
	"testing"
	"time"
)

func TestResolveTimestamp(t *testing.T) {
	base := float64(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())

	tests := []struct {
		raw  string
		want float64
	}{
		{"2025-01-01 00:00:00.000", base},
		{"2025-01-01 00:00:00.010", base + 10},
		{"2025-01-01T00:00:00.010Z", base + 10},
		{"2025-01-01T00:00:00Z", base},
		{"2025-01-01T02:00:00+02:00", base},
		{"2025-01-01T02:00:00.5+0200", base + 500},
		{"2025-01-01 02:00:00.000 +02:00", base},
		{"2025-01-01T00:00:00.000250Z", base + 0.25},
		{"2025-01-01T00:00:00", base},
		{"2025-01-01", base},
		{"  2025-01-01 00:00:01.000  ", base + 1000},
		{"1735689600000", base},
		{"1500.5", 1500.5},
		{"20251301", 20251301}, // not a calendar date, so plain milliseconds
		{"12345678", 12345678},
	}
	for _, tt := range tests {
		got, err := ResolveTimestamp(tt.raw)
		if err != nil {
			t.Errorf("ResolveTimestamp(%q) unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveTimestamp(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestResolveTimestamp_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "yesterday", "2025-13-45 99:99:99", "NaN", "Inf", "2025/01/01", "20250101", "19991231"} {
		_, err := ResolveTimestamp(raw)
		if !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("ResolveTimestamp(%q) error = %v, want ErrInvalidTimestamp", raw, err)
		}
	}
}
