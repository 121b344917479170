// Package timeline computes where each span bar sits on the trace's time axis.
package timeline

import (
	"math"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

// MinVisibleWidthPercent keeps zero-duration spans visible as a sliver.
const MinVisibleWidthPercent = 0.2

// Bar is a span's horizontal placement as percentages of the trace window.
type Bar struct {
	OffsetPercent float64 `json:"offset_percent"`
	WidthPercent  float64 `json:"width_percent"`
}

// Layout places a node on the trace's time axis. The result always satisfies
// 0 <= OffsetPercent <= 100 and OffsetPercent+WidthPercent <= 100.
func Layout(n *trace.Node, t *trace.Trace) Bar {
	return place(n.StartMs-t.MinStart, n.DurationMs, t.TotalDuration())
}

func place(offsetMs, durationMs, total float64) Bar {
	offset := clamp(offsetMs*100/total, 0, 100)
	room := 100 - offset
	width := clamp(durationMs*100/total, MinVisibleWidthPercent, 100)
	// At the far right edge there may be less room than the minimum sliver;
	// staying inside the axis wins.
	width = math.Min(width, room)
	return Bar{OffsetPercent: offset, WidthPercent: width}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

type layoutKey struct {
	spanID   string
	minStart float64
	total    float64
}

// Layouter memoises bars for one trace window. Not safe for concurrent use;
// callers serialise access the same way they serialise navigation.
type Layouter struct {
	bars map[layoutKey]Bar
}

// NewLayouter returns an empty memo.
func NewLayouter() *Layouter {
	return &Layouter{bars: make(map[layoutKey]Bar)}
}

// Bar returns the memoised layout for n within t.
func (l *Layouter) Bar(n *trace.Node, t *trace.Trace) Bar {
	key := layoutKey{spanID: n.SpanID, minStart: t.MinStart, total: t.TotalDuration()}
	if b, ok := l.bars[key]; ok {
		return b
	}
	b := Layout(n, t)
	l.bars[key] = b
	return b
}

// Len returns the number of memoised bars.
func (l *Layouter) Len() int {
	return len(l.bars)
}

// Reset drops every memoised bar; used when the trace window changes.
func (l *Layouter) Reset() {
	clear(l.bars)
}
