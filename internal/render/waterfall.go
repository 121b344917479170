// Package render draws a waterfall snapshot as text for terminals and logs.
package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/tobert/otlp-waterfall/internal/timeline"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

const (
	DefaultWidth    = 100
	DefaultBarWidth = 40
	minLabelCols    = 8
	errSuffix       = " !! ERR"
)

// Options controls text rendering.
type Options struct {
	Width    int // total line width; 0 uses DefaultWidth
	BarWidth int // 0 uses DefaultBarWidth, shrunk to fit Width
	// Color styles bars with lipgloss. ColorByService picks the colour by
	// service instead of by status.
	Color          bool
	ColorByService bool
	// MaxRows caps the rows written by Waterfall; 0 means no cap.
	MaxRows int
}

func (o Options) normalized() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.BarWidth <= 0 {
		o.BarWidth = DefaultBarWidth
	}
	// Leave room for at least a short label.
	o.BarWidth = max(min(o.BarWidth, o.Width-minLabelCols-24), 10)
	return o
}

// Waterfall renders the header, the time axis and every visible row.
func Waterfall(snap view.Snapshot, opts Options) string {
	opts = opts.normalized()
	var b strings.Builder

	b.WriteString(Header(snap))
	b.WriteByte('\n')
	if snap.Empty() {
		return b.String()
	}

	g := newGeometry(snap, opts)
	b.WriteString(g.axis(snap.Markers))
	b.WriteByte('\n')

	lines := snap.Lines
	overflow := 0
	if opts.MaxRows > 0 && len(lines) > opts.MaxRows {
		overflow = len(lines) - opts.MaxRows
		lines = lines[:opts.MaxRows]
	}
	palette := NewPalette(snap.Trace.Services())
	for _, l := range lines {
		b.WriteString(g.row(l, snap.Trace, palette))
		b.WriteByte('\n')
	}
	if overflow > 0 {
		fmt.Fprintf(&b, "  ... +%d more spans\n", overflow)
	}
	return b.String()
}

// Rows renders the visible rows without header or axis, for callers that
// scroll the output themselves.
func Rows(snap view.Snapshot, opts Options) []string {
	opts = opts.normalized()
	if snap.Empty() {
		return nil
	}
	g := newGeometry(snap, opts)
	palette := NewPalette(snap.Trace.Services())
	out := make([]string, len(snap.Lines))
	for i, l := range snap.Lines {
		out[i] = g.row(l, snap.Trace, palette)
	}
	return out
}

// Axis renders the marker labels aligned with the bar column.
func Axis(snap view.Snapshot, opts Options) string {
	if snap.Empty() {
		return ""
	}
	return newGeometry(snap, opts.normalized()).axis(snap.Markers)
}

// Header summarises the trace in one line.
func Header(snap view.Snapshot) string {
	t := snap.Trace
	if t == nil || t.Empty() {
		return "No spans"
	}
	h := fmt.Sprintf("Trace: %d spans, %d roots, %s", t.Len(), len(t.Roots), timeline.FormatMillis(t.TotalDuration()))
	if n := len(snap.Issues); n > 0 {
		h += fmt.Sprintf(", %d issues", n)
	}
	return h
}

// geometry holds the column budget shared by every row of one frame so
// bars line up regardless of indentation.
type geometry struct {
	opts       Options
	durCols    int
	labelStart int // first column after the focus marker
	barStart   int
}

func newGeometry(snap view.Snapshot, opts Options) geometry {
	g := geometry{opts: opts, labelStart: 2}
	for _, l := range snap.Lines {
		g.durCols = max(g.durCols, runewidth.StringWidth(durationText(l.Node)))
	}
	// marker + label area + " [" + bar + "] " + duration
	g.barStart = opts.Width - g.durCols - 2 - opts.BarWidth - 1
	g.barStart = max(g.barStart, g.labelStart+minLabelCols+2)
	return g
}

func (g geometry) row(l view.Line, t *trace.Trace, p *Palette) string {
	var b strings.Builder

	switch {
	case l.Focused:
		b.WriteString("> ")
	case l.Selected:
		b.WriteString("* ")
	default:
		b.WriteString("  ")
	}

	prefix := treePrefix(l.Node, t) + indicator(l.Row)
	label := l.Node.Service + "." + l.Node.SpanName
	if l.Node.Service == "" {
		label = l.Node.SpanName
	}
	if label == "" {
		label = l.Node.SpanID
	}

	budget := max(g.barStart-2-g.labelStart-runewidth.StringWidth(prefix), 1)
	label = runewidth.FillRight(runewidth.Truncate(label, budget, "…"), budget)

	b.WriteString(prefix)
	b.WriteString(label)
	b.WriteString(" [")
	b.WriteString(g.bar(l, p))
	b.WriteString("] ")
	b.WriteString(runewidth.FillRight(durationText(l.Node), g.durCols))
	return strings.TrimRight(b.String(), " ")
}

func (g geometry) bar(l view.Line, p *Palette) string {
	bw := g.opts.BarWidth
	start, end := barColumns(l.Bar, bw)

	fill := strings.Repeat("#", end-start)
	if g.opts.Color {
		color := p.BarColor(l.Node.Service, l.Node.StatusCode, g.opts.ColorByService)
		fill = lipgloss.NewStyle().Foreground(color).Render(fill)
	}
	return strings.Repeat(".", start) + fill + strings.Repeat(".", bw-end)
}

// barColumns turns a percentage bar into a half-open column range of at
// least one column inside [0, width).
func barColumns(bar timeline.Bar, width int) (int, int) {
	w := float64(width)
	start := int(math.Floor(bar.OffsetPercent / 100 * w))
	end := int(math.Ceil((bar.OffsetPercent + bar.WidthPercent) / 100 * w))
	start = min(max(start, 0), width-1)
	end = min(max(end, start+1), width)
	return start, end
}

func (g geometry) axis(markers []timeline.Marker) string {
	bw := g.opts.BarWidth
	type placed struct {
		start int
		label []rune
	}
	var labels []placed
	for i, m := range markers {
		label := []rune(m.Label)
		pos := int(math.Round(m.PositionPercent / 100 * float64(bw-1)))
		start := min(pos, bw-len(label))
		if start < 0 {
			continue
		}
		// Labels need a gap; the final label wins over its neighbour.
		if n := len(labels); n > 0 && start <= labels[n-1].start+len(labels[n-1].label) {
			if i != len(markers)-1 {
				continue
			}
			labels = labels[:n-1]
		}
		labels = append(labels, placed{start: start, label: label})
	}

	cols := []rune(strings.Repeat(" ", bw))
	for _, p := range labels {
		copy(cols[p.start:], p.label)
	}
	return strings.TrimRight(strings.Repeat(" ", g.barStart)+string(cols), " ")
}

func durationText(n *trace.Node) string {
	s := timeline.FormatMillis(n.DurationMs)
	if IsError(n.StatusCode) {
		s += errSuffix
	}
	if !n.Valid() {
		s += " ?"
	}
	return s
}

func indicator(r view.Row) string {
	switch {
	case !r.HasChildren():
		return "  "
	case r.Expanded:
		return "▼ "
	}
	return "▶ "
}

// treePrefix draws the connectors for n: a vertical rule for every ancestor
// that still has siblings below it, then the branch into n itself.
func treePrefix(n *trace.Node, t *trace.Trace) string {
	if n.Parent == nil {
		return ""
	}
	var parts []string
	for a := n.Parent; a.Parent != nil; a = a.Parent {
		if isLastChild(a, t) {
			parts = append(parts, "   ")
		} else {
			parts = append(parts, "│  ")
		}
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
	}
	if isLastChild(n, t) {
		b.WriteString("└─ ")
	} else {
		b.WriteString("├─ ")
	}
	return b.String()
}

func isLastChild(n *trace.Node, t *trace.Trace) bool {
	siblings := t.Roots
	if n.Parent != nil {
		siblings = n.Parent.Children
	}
	return len(siblings) > 0 && siblings[len(siblings)-1] == n
}
