package render

import (
	"github.com/tobert/otlp-waterfall/internal/timeline"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// Document is the JSON form of a snapshot, shared by the web UI and the MCP
// tools.
type Document struct {
	Revision        uint64            `json:"revision"`
	Generation      uint64            `json:"generation"`
	SpanCount       int               `json:"span_count"`
	RootCount       int               `json:"root_count"`
	MinStartMs      float64           `json:"min_start_ms"`
	TotalDurationMs float64           `json:"total_duration_ms"`
	Focused         string            `json:"focused,omitempty"`
	Selected        string            `json:"selected,omitempty"`
	Markers         []timeline.Marker `json:"markers"`
	Rows            []RowDoc          `json:"rows"`
	Issues          []IssueDoc        `json:"issues,omitempty"`
}

// RowDoc is one visible row.
type RowDoc struct {
	SpanID        string   `json:"span_id"`
	ParentSpanID  string   `json:"parent_span_id,omitempty"`
	SpanName      string   `json:"span_name"`
	Service       string   `json:"service"`
	Depth         int      `json:"depth"`
	HasChildren   bool     `json:"has_children"`
	Expanded      bool     `json:"expanded"`
	Focused       bool     `json:"focused,omitempty"`
	Selected      bool     `json:"selected,omitempty"`
	OffsetMs      float64  `json:"offset_ms"`
	DurationMs    float64  `json:"duration_ms"`
	OffsetPercent float64  `json:"offset_percent"`
	WidthPercent  float64  `json:"width_percent"`
	Color         string   `json:"color"`
	StatusCode    string   `json:"status_code,omitempty"`
	Error         bool     `json:"error,omitempty"`
	Issues        []string `json:"issues,omitempty"`
}

// IssueDoc is one build problem.
type IssueDoc struct {
	SpanID string `json:"span_id"`
	Error  string `json:"error"`
}

// SpanDoc is the full record of one span, visible or not.
type SpanDoc struct {
	Span        trace.Span `json:"span"`
	OffsetMs    float64    `json:"offset_ms"`
	Depth       int        `json:"depth"`
	ChildIDs    []string   `json:"child_ids,omitempty"`
	Visible     bool       `json:"visible"`
	Issues      []string   `json:"issues,omitempty"`
	Description string     `json:"description"`
}

// NewDocument converts snap. byService picks bar colours by service rather
// than by status.
func NewDocument(snap view.Snapshot, byService bool) Document {
	doc := Document{
		Revision:   snap.Revision,
		Generation: snap.Generation,
		Focused:    snap.Focused,
		Selected:   snap.Selected,
		Markers:    snap.Markers,
		Rows:       make([]RowDoc, 0, len(snap.Lines)),
	}
	if doc.Markers == nil {
		doc.Markers = []timeline.Marker{}
	}
	t := snap.Trace
	if t == nil {
		return doc
	}
	doc.SpanCount = t.Len()
	doc.RootCount = len(t.Roots)
	doc.MinStartMs = t.MinStart
	doc.TotalDurationMs = t.TotalDuration()

	p := NewPalette(t.Services())
	for _, l := range snap.Lines {
		n := l.Node
		doc.Rows = append(doc.Rows, RowDoc{
			SpanID:        n.SpanID,
			ParentSpanID:  n.ParentSpanID,
			SpanName:      n.SpanName,
			Service:       n.Service,
			Depth:         l.Depth,
			HasChildren:   l.HasChildren(),
			Expanded:      l.Expanded,
			Focused:       l.Focused,
			Selected:      l.Selected,
			OffsetMs:      n.StartMs - t.MinStart,
			DurationMs:    n.DurationMs,
			OffsetPercent: l.Bar.OffsetPercent,
			WidthPercent:  l.Bar.WidthPercent,
			Color:         string(p.BarColor(n.Service, n.StatusCode, byService)),
			StatusCode:    n.StatusCode,
			Error:         IsError(n.StatusCode),
			Issues:        errorStrings(n.Issues),
		})
	}
	for _, is := range snap.Issues {
		doc.Issues = append(doc.Issues, IssueDoc{SpanID: is.SpanID, Error: is.Err.Error()})
	}
	return doc
}

// NewSpanDoc describes n within snap.
func NewSpanDoc(n *trace.Node, snap view.Snapshot) SpanDoc {
	d := SpanDoc{
		Span:        n.Span,
		OffsetMs:    n.StartMs - snap.Trace.MinStart,
		Depth:       n.Depth,
		Issues:      errorStrings(n.Issues),
		Description: Detail(n, snap.Trace),
	}
	for _, c := range n.Children {
		d.ChildIDs = append(d.ChildIDs, c.SpanID)
	}
	for _, l := range snap.Lines {
		if l.Node == n {
			d.Visible = true
			break
		}
	}
	return d
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
