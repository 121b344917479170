package timeline

import (
	"fmt"
	"math"
)

// DefaultMarkerCount is the number of evenly spaced axis labels, ends included.
const DefaultMarkerCount = 6

// MarkerMode picks how axis labels are spaced.
type MarkerMode int

const (
	// EvenMarkers spaces a fixed number of labels across the window.
	EvenMarkers MarkerMode = iota
	// NiceMarkers steps by a round interval chosen from the window size.
	NiceMarkers
)

// ParseMarkerMode maps "even" or "nice" to a MarkerMode.
func ParseMarkerMode(s string) (MarkerMode, error) {
	switch s {
	case "", "even":
		return EvenMarkers, nil
	case "nice":
		return NiceMarkers, nil
	}
	return EvenMarkers, fmt.Errorf("unknown marker mode %q (want even or nice)", s)
}

// Marker is one axis label.
type Marker struct {
	TimeMs          float64 `json:"time_ms"`
	PositionPercent float64 `json:"position_percent"`
	Label           string  `json:"label"`
}

// Markers returns count labels evenly spaced over [0, total]. Times are not
// rounded, so sub-millisecond windows still get distinct markers; the last
// one is exactly total. Counts below 2 are raised to 2.
func Markers(total float64, count int) []Marker {
	if total <= 0 {
		return nil
	}
	count = max(count, 2)
	out := make([]Marker, count)
	for i := range out {
		tm := total * float64(i) / float64(count-1)
		if i == count-1 {
			tm = total
		}
		out[i] = marker(tm, total)
	}
	return out
}

// NiceInterval picks an axis step: 10, 50, 100, 500 or 1000 ms for windows
// up to 10s, else a tenth of the window rounded up to whole seconds.
func NiceInterval(total float64) float64 {
	switch {
	case total <= 100:
		return 10
	case total <= 500:
		return 50
	case total <= 1000:
		return 100
	case total <= 5000:
		return 500
	case total <= 10000:
		return 1000
	}
	return math.Ceil(total/10/1000) * 1000
}

// NiceTimeMarkers returns labels at every NiceInterval step from 0 to total.
func NiceTimeMarkers(total float64) []Marker {
	if total <= 0 {
		return nil
	}
	step := NiceInterval(total)
	var out []Marker
	for i := 0; ; i++ {
		tm := float64(i) * step
		if tm > total {
			break
		}
		out = append(out, marker(tm, total))
	}
	return out
}

// MarkersFor dispatches on mode.
func MarkersFor(mode MarkerMode, total float64, count int) []Marker {
	if mode == NiceMarkers {
		return NiceTimeMarkers(total)
	}
	return Markers(total, count)
}

func marker(tm, total float64) Marker {
	return Marker{
		TimeMs:          tm,
		PositionPercent: clamp(tm*100/total, 0, 100),
		Label:           FormatMillis(tm),
	}
}

// FormatMillis renders a duration in milliseconds for labels: µs below 1ms,
// whole ms below 1s, tenths of seconds above.
func FormatMillis(ms float64) string {
	switch {
	case ms <= 0:
		return "0ms"
	case ms < 1:
		return fmt.Sprintf("%.0fµs", ms*1000)
	case ms < 10:
		return fmt.Sprintf("%.1fms", ms)
	case ms < 1000:
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}
