package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/render"
	"github.com/tobert/otlp-waterfall/internal/spanfile"
	"github.com/tobert/otlp-waterfall/internal/storage"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// ═══════════════════════════════════════════════════════════════════════════
// WATERFALL TOOLS
//
// 1. load_spans     - Load a batch from a file, raw text or inline records
// 2. get_waterfall  - The visible rows as text plus the JSON document
// 3. navigate       - Keyboard events: move, expand, collapse, toggle
// 4. select_span    - Pointer selection, optionally revealing hidden spans
// 5. get_span       - Everything known about one span
// 6. list_revisions - Batches loaded so far
// 7. open_revision  - Show an earlier batch again
// ═══════════════════════════════════════════════════════════════════════════

var (
	ErrNoInput      = errors.New("one of path, text or spans is required")
	ErrSpanNotFound = errors.New("span not found")
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "load_spans",
		Description: "Load a span batch and show it as a waterfall. Give exactly one of: path (a JSON array, JSON lines, {\"spans\": [...]} or OTLP JSON file), text (the same formats inline) or spans (records with span_id, parent_span_id, span_name, service, timestamp, duration_ms). Malformed records are skipped and reported in warning. Loading identical content again keeps the current expansion and focus.",
	}, s.handleLoadSpans)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_waterfall",
		Description: "Render the visible rows of the current waterfall: tree structure, bars scaled to the trace duration, time axis markers, focus (>) and selection (*). Returns both a text rendering and a structured document with offsets and widths in percent.",
	}, s.handleGetWaterfall)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "navigate",
		Description: "Send a navigation event to the waterfall, exactly like a keyboard. Use key (ArrowUp, ArrowDown, ArrowLeft, ArrowRight, Enter, Home, End, e, c) or action (move_up, move_down, move_first, move_last, expand, collapse, toggle, toggle_row, select, expand_all, collapse_all; toggle_row and select need span_id). repeat applies the event several times.",
	}, s.handleNavigate)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "select_span",
		Description: "Select and focus a span by id, as a mouse click would. With reveal, collapsed ancestors are expanded first so a hidden span becomes visible; without it a hidden span cannot be selected.",
	}, s.handleSelectSpan)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_span",
		Description: "Get every field of one span plus its offset from trace start, depth, children, visibility and any data issues. Defaults to the focused span.",
	}, s.handleGetSpan)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_revisions",
		Description: "List the span batches loaded so far, oldest first, with source, load time, span count and content fingerprint. Identical consecutive loads are recorded once.",
	}, s.handleListRevisions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "open_revision",
		Description: "Show an earlier batch from list_revisions again by its seq number. Navigation state starts over.",
	}, s.handleOpenRevision)
}

func (s *Server) snapshotText(snap view.Snapshot, maxRows int) string {
	return render.Waterfall(snap, render.Options{
		Width:          s.width,
		ColorByService: s.colorByService,
		MaxRows:        maxRows,
	})
}

// Tool 1: load_spans

type LoadSpansInput struct {
	Path  string       `json:"path,omitempty" jsonschema:"Path of a span file to read"`
	Text  string       `json:"text,omitempty" jsonschema:"Span file content in any supported format"`
	Spans []trace.Span `json:"spans,omitempty" jsonschema:"Span records to load directly"`
}

type LoadSpansOutput struct {
	Seq       uint64 `json:"seq" jsonschema:"Revision number of the loaded batch"`
	Source    string `json:"source" jsonschema:"Where the batch came from"`
	SpanCount int    `json:"span_count" jsonschema:"Number of spans in the batch"`
	RootCount int    `json:"root_count" jsonschema:"Number of root spans"`
	Issues    int    `json:"issues" jsonschema:"Number of data problems found while building"`
	Changed   bool   `json:"changed" jsonschema:"False when the batch matched what was already shown"`
	Warning   string `json:"warning,omitempty" jsonschema:"Records that failed to decode"`
}

func (s *Server) handleLoadSpans(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LoadSpansInput,
) (*mcp.CallToolResult, LoadSpansOutput, error) {
	var (
		spans  []trace.Span
		source string
		err    error
	)
	switch {
	case input.Path != "":
		source = input.Path
		spans, err = spanfile.Load(input.Path)
	case input.Text != "":
		source = "text"
		spans, err = spanfile.DecodeBytes([]byte(input.Text))
	case len(input.Spans) > 0:
		source = "inline"
		spans = input.Spans
	default:
		return nil, LoadSpansOutput{}, ErrNoInput
	}
	if err != nil && len(spans) == 0 {
		return nil, LoadSpansOutput{}, fmt.Errorf("load spans: %w", err)
	}

	rev, changed := s.Ingest(source, spans)
	snap := s.session.Snapshot()
	out := LoadSpansOutput{
		Seq:       rev.Seq,
		Source:    source,
		SpanCount: snap.Trace.Len(),
		RootCount: len(snap.Trace.Roots),
		Issues:    len(snap.Issues),
		Changed:   changed,
	}
	if err != nil {
		s.logger.Warn("partial span load", zap.String("source", source), zap.Error(err))
		out.Warning = err.Error()
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 2: get_waterfall

type GetWaterfallInput struct {
	MaxRows int `json:"max_rows,omitempty" jsonschema:"Cap on rendered text rows (0 for all)"`
}

type WaterfallOutput struct {
	Text     string          `json:"text" jsonschema:"Text rendering of the visible rows"`
	Document render.Document `json:"document" jsonschema:"Structured rows, markers and issues"`
}

func (s *Server) handleGetWaterfall(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetWaterfallInput,
) (*mcp.CallToolResult, WaterfallOutput, error) {
	snap := s.session.Snapshot()
	return &mcp.CallToolResult{}, WaterfallOutput{
		Text:     s.snapshotText(snap, input.MaxRows),
		Document: render.NewDocument(snap, s.colorByService),
	}, nil
}

// Tool 3: navigate

// maxRepeat bounds one navigate call. Toggles change state on every
// application, so the no-op early exit alone does not end them.
const maxRepeat = 100

type NavigateInput struct {
	Key    string `json:"key,omitempty" jsonschema:"Key name such as ArrowDown or Enter"`
	Action string `json:"action,omitempty" jsonschema:"Event name such as move_down or expand_all"`
	SpanID string `json:"span_id,omitempty" jsonschema:"Target span for toggle_row and select"`
	Repeat int    `json:"repeat,omitempty" jsonschema:"How many times to apply the event (default 1, at most 100)"`
}

type NavigateOutput struct {
	Changed  bool   `json:"changed" jsonschema:"Whether any application changed the view"`
	Focused  string `json:"focused,omitempty" jsonschema:"Focused span id"`
	Selected string `json:"selected,omitempty" jsonschema:"Selected span id"`
	Text     string `json:"text" jsonschema:"Text rendering after the event"`
}

func (s *Server) handleNavigate(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input NavigateInput,
) (*mcp.CallToolResult, NavigateOutput, error) {
	ev, err := view.ParseEvent(input.Key, input.Action, input.SpanID)
	if err != nil {
		return nil, NavigateOutput{}, err
	}

	repeat := min(max(input.Repeat, 1), maxRepeat)
	changed := false
	for range repeat {
		if !s.session.Dispatch(ev) {
			// Further applications cannot change anything either.
			break
		}
		changed = true
	}
	return &mcp.CallToolResult{}, s.navigateOutput(changed), nil
}

func (s *Server) navigateOutput(changed bool) NavigateOutput {
	snap := s.session.Snapshot()
	return NavigateOutput{
		Changed:  changed,
		Focused:  snap.Focused,
		Selected: snap.Selected,
		Text:     s.snapshotText(snap, 0),
	}
}

// Tool 4: select_span

type SelectSpanInput struct {
	SpanID string `json:"span_id" jsonschema:"Span to select"`
	Reveal bool   `json:"reveal,omitempty" jsonschema:"Expand collapsed ancestors first"`
}

func (s *Server) handleSelectSpan(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SelectSpanInput,
) (*mcp.CallToolResult, NavigateOutput, error) {
	st := s.session.State()
	n, ok := st.Trace.Node(input.SpanID)
	if !ok {
		return nil, NavigateOutput{}, fmt.Errorf("%w: %q", ErrSpanNotFound, input.SpanID)
	}

	changed := false
	if input.Reveal {
		changed = s.reveal(n)
	}
	if s.session.Dispatch(view.SelectSpan(n.SpanID)) {
		changed = true
	}
	if !s.session.State().Visible(n.SpanID) {
		return nil, NavigateOutput{}, fmt.Errorf("span %q is hidden by a collapsed ancestor; retry with reveal", n.SpanID)
	}
	return &mcp.CallToolResult{}, s.navigateOutput(changed), nil
}

// reveal expands every collapsed ancestor of n, outermost first, so each
// toggle targets a row that is already visible.
func (s *Server) reveal(n *trace.Node) bool {
	var chain []*trace.Node
	for p := n.Parent; p != nil; p = p.Parent {
		chain = append(chain, p)
	}
	changed := false
	for i := len(chain) - 1; i >= 0; i-- {
		id := chain[i].SpanID
		if s.session.State().Expanded.Has(id) {
			continue
		}
		if s.session.Dispatch(view.ToggleSpan(id)) {
			changed = true
		}
	}
	return changed
}

// Tool 5: get_span

type GetSpanInput struct {
	SpanID string `json:"span_id,omitempty" jsonschema:"Span to describe (default: the focused span)"`
}

func (s *Server) handleGetSpan(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetSpanInput,
) (*mcp.CallToolResult, render.SpanDoc, error) {
	snap := s.session.Snapshot()
	id := input.SpanID
	if id == "" {
		id = snap.Focused
	}
	n, ok := snap.Trace.Node(id)
	if !ok {
		return nil, render.SpanDoc{}, fmt.Errorf("%w: %q", ErrSpanNotFound, id)
	}
	return &mcp.CallToolResult{}, render.NewSpanDoc(n, snap), nil
}

// Tool 6: list_revisions

type ListRevisionsInput struct{}

type ListRevisionsOutput struct {
	Revisions []RevisionInfo `json:"revisions" jsonschema:"Loaded batches, oldest first"`
	Shown     uint64         `json:"shown,omitempty" jsonschema:"Seq of the batch on screen, if it is retained"`
}

// RevisionInfo describes one retained batch without its spans.
type RevisionInfo struct {
	Seq         uint64 `json:"seq" jsonschema:"Revision number"`
	Source      string `json:"source" jsonschema:"File path, text or inline"`
	LoadedAt    string `json:"loaded_at" jsonschema:"Load time in RFC 3339"`
	SpanCount   int    `json:"span_count" jsonschema:"Number of spans in the batch"`
	Fingerprint string `json:"fingerprint" jsonschema:"Content hash in hex; equal hashes mean equal batches"`
}

func revisionInfo(rev storage.Revision) RevisionInfo {
	return RevisionInfo{
		Seq:         rev.Seq,
		Source:      rev.Source,
		LoadedAt:    rev.LoadedAt.UTC().Format(time.RFC3339Nano),
		SpanCount:   rev.SpanCount,
		Fingerprint: fmt.Sprintf("%016x", rev.Fingerprint),
	}
}

func (s *Server) handleListRevisions(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListRevisionsInput,
) (*mcp.CallToolResult, ListRevisionsOutput, error) {
	revs := s.history.List()
	out := ListRevisionsOutput{Revisions: make([]RevisionInfo, 0, len(revs))}
	fp := s.session.State().Trace.Fingerprint
	for _, rev := range revs {
		out.Revisions = append(out.Revisions, revisionInfo(rev))
		// Newest match wins when the same content was loaded more than once.
		if rev.Fingerprint == fp {
			out.Shown = rev.Seq
		}
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 7: open_revision

type OpenRevisionInput struct {
	Seq uint64 `json:"seq" jsonschema:"Revision number from list_revisions"`
}

func (s *Server) handleOpenRevision(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OpenRevisionInput,
) (*mcp.CallToolResult, LoadSpansOutput, error) {
	rev, ok := s.history.Get(input.Seq)
	if !ok {
		return nil, LoadSpansOutput{}, fmt.Errorf("revision %d is not retained", input.Seq)
	}
	changed := s.session.Load(rev.Spans)
	snap := s.session.Snapshot()
	return &mcp.CallToolResult{}, LoadSpansOutput{
		Seq:       rev.Seq,
		Source:    rev.Source,
		SpanCount: snap.Trace.Len(),
		RootCount: len(snap.Trace.Roots),
		Issues:    len(snap.Issues),
		Changed:   changed,
	}, nil
}
