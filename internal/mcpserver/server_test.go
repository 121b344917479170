package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/otlp-waterfall/internal/render"
	"github.com/tobert/otlp-waterfall/internal/storage"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// r ─┬─ a ── a1
//
//	└─ b
var testSpans = []trace.Span{
	{SpanID: "r", SpanName: "GET /", Service: "web", Timestamp: "0", DurationMs: 100},
	{SpanID: "a", ParentSpanID: "r", SpanName: "auth", Service: "web", Timestamp: "10", DurationMs: 30},
	{SpanID: "a1", ParentSpanID: "a", SpanName: "lookup", Service: "db", Timestamp: "15", DurationMs: 5},
	{SpanID: "b", ParentSpanID: "r", SpanName: "render", Service: "web", Timestamp: "50", DurationMs: 40, StatusCode: "500"},
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(view.NewSession(view.Options{}), storage.NewBatchHistory(4))
	require.NoError(t, err)
	return srv
}

func loadedServer(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer(t)
	_, out, err := srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{Spans: testSpans})
	require.NoError(t, err)
	require.True(t, out.Changed)
	return srv
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, storage.NewBatchHistory(1))
	assert.Error(t, err)
	_, err = NewServer(view.NewSession(view.Options{}), nil)
	assert.Error(t, err)

	srv := newTestServer(t)
	assert.NotNil(t, srv.MCPServer())
}

func TestLoadSpans_Inline(t *testing.T) {
	srv := newTestServer(t)
	_, out, err := srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{Spans: testSpans})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), out.Seq)
	assert.Equal(t, "inline", out.Source)
	assert.Equal(t, 4, out.SpanCount)
	assert.Equal(t, 1, out.RootCount)
	assert.Zero(t, out.Issues)
	assert.True(t, out.Changed)

	_, again, err := srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{Spans: testSpans})
	require.NoError(t, err)
	assert.False(t, again.Changed, "identical content keeps the view")
	assert.Equal(t, uint64(1), again.Seq)
}

func TestLoadSpans_PathAndText(t *testing.T) {
	srv := newTestServer(t)

	path := filepath.Join(t.TempDir(), "spans.jsonl")
	content := `{"span_id":"x","span_name":"one","timestamp":"0","duration_ms":5}
not json
{"span_id":"y","parent_span_id":"x","timestamp":"1","duration_ms":2}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, out, err := srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, out.Source)
	assert.Equal(t, 2, out.SpanCount)
	assert.Contains(t, out.Warning, "line 2")

	_, out, err = srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{
		Text: `[{"span_id":"z","timestamp":"0","duration_ms":1}]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "text", out.Source)
	assert.Equal(t, uint64(2), out.Seq)
	assert.Equal(t, 1, out.SpanCount)
	assert.Empty(t, out.Warning)
}

func TestLoadSpans_Errors(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{})
	assert.ErrorIs(t, err, ErrNoInput)

	_, _, err = srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{
		Path: filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = srv.handleLoadSpans(context.Background(), nil, LoadSpansInput{Text: "garbage"})
	assert.Error(t, err)
	assert.Zero(t, srv.history.Len(), "failed loads are not recorded")
}

func TestGetWaterfall(t *testing.T) {
	srv := loadedServer(t)
	_, out, err := srv.handleGetWaterfall(context.Background(), nil, GetWaterfallInput{})
	require.NoError(t, err)

	assert.Contains(t, out.Text, "Trace: 4 spans, 1 roots")
	assert.Contains(t, out.Text, "GET /")
	assert.Contains(t, out.Text, "!! ERR")

	doc := out.Document
	require.Len(t, doc.Rows, 4)
	assert.Equal(t, []string{"r", "a", "a1", "b"}, rowIDs(doc))
	assert.Equal(t, "r", doc.Focused)
	assert.InDelta(t, 50, doc.Rows[3].OffsetPercent, 1e-9)
	assert.InDelta(t, 40, doc.Rows[3].WidthPercent, 1e-9)

	_, capped, err := srv.handleGetWaterfall(context.Background(), nil, GetWaterfallInput{MaxRows: 1})
	require.NoError(t, err)
	assert.Contains(t, capped.Text, "+3 more spans")
}

func rowIDs(doc render.Document) []string {
	ids := make([]string, len(doc.Rows))
	for i, r := range doc.Rows {
		ids[i] = r.SpanID
	}
	return ids
}

func TestNavigate(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	_, out, err := srv.handleNavigate(ctx, nil, NavigateInput{Key: "ArrowDown"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, "a", out.Focused)

	_, out, err = srv.handleNavigate(ctx, nil, NavigateInput{Action: "move_down", Repeat: 10})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, "b", out.Focused, "repeat stops at the last row")

	_, out, err = srv.handleNavigate(ctx, nil, NavigateInput{Action: "move_down"})
	require.NoError(t, err)
	assert.False(t, out.Changed)

	_, out, err = srv.handleNavigate(ctx, nil, NavigateInput{Action: "toggle_row", SpanID: "a"})
	require.NoError(t, err)
	assert.NotContains(t, out.Text, "lookup")

	_, _, err = srv.handleNavigate(ctx, nil, NavigateInput{Action: "jump"})
	assert.ErrorIs(t, err, view.ErrUnknownEvent)
}

func TestNavigate_RepeatIsBounded(t *testing.T) {
	srv := loadedServer(t)
	before := srv.session.State().Generation()

	_, out, err := srv.handleNavigate(context.Background(), nil, NavigateInput{Action: "toggle", Repeat: 1_000_000_000})
	require.NoError(t, err)
	assert.True(t, out.Changed)

	applied := srv.session.State().Generation() - before
	assert.Equal(t, uint64(maxRepeat), applied)
	assert.Contains(t, out.Text, "lookup", "an even number of toggles leaves the root expanded")
}

func TestSelectSpan(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	_, out, err := srv.handleSelectSpan(ctx, nil, SelectSpanInput{SpanID: "b"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, "b", out.Selected)
	assert.Equal(t, "b", out.Focused)

	srv.session.Dispatch(view.Event{Kind: view.CollapseEverything})
	_, _, err = srv.handleSelectSpan(ctx, nil, SelectSpanInput{SpanID: "a1"})
	assert.Error(t, err, "hidden span without reveal")

	_, out, err = srv.handleSelectSpan(ctx, nil, SelectSpanInput{SpanID: "a1", Reveal: true})
	require.NoError(t, err)
	assert.Equal(t, "a1", out.Selected)
	assert.True(t, srv.session.State().Expanded.Has("r"))
	assert.True(t, srv.session.State().Expanded.Has("a"))

	_, _, err = srv.handleSelectSpan(ctx, nil, SelectSpanInput{SpanID: "nope"})
	assert.ErrorIs(t, err, ErrSpanNotFound)
}

func TestGetSpan(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	_, doc, err := srv.handleGetSpan(ctx, nil, GetSpanInput{})
	require.NoError(t, err)
	assert.Equal(t, "r", doc.Span.SpanID, "defaults to the focused span")
	assert.Equal(t, []string{"a", "b"}, doc.ChildIDs)
	assert.True(t, doc.Visible)

	_, doc, err = srv.handleGetSpan(ctx, nil, GetSpanInput{SpanID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Depth)
	assert.InDelta(t, 15, doc.OffsetMs, 1e-9)
	assert.Contains(t, doc.Description, "lookup  span=a1 parent=a")

	_, _, err = srv.handleGetSpan(ctx, nil, GetSpanInput{SpanID: "nope"})
	assert.ErrorIs(t, err, ErrSpanNotFound)
}

func TestRevisions(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	_, second, err := srv.handleLoadSpans(ctx, nil, LoadSpansInput{Spans: testSpans[:1]})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Seq)

	_, list, err := srv.handleListRevisions(ctx, nil, ListRevisionsInput{})
	require.NoError(t, err)
	require.Len(t, list.Revisions, 2)
	assert.Equal(t, uint64(2), list.Shown)
	assert.Equal(t, "inline", list.Revisions[0].Source)
	assert.Len(t, list.Revisions[0].Fingerprint, 16)
	assert.NotEqual(t, list.Revisions[0].Fingerprint, list.Revisions[1].Fingerprint)

	_, opened, err := srv.handleOpenRevision(ctx, nil, OpenRevisionInput{Seq: 1})
	require.NoError(t, err)
	assert.True(t, opened.Changed)
	assert.Equal(t, 4, opened.SpanCount)
	assert.Equal(t, "inline", opened.Source)

	_, list, err = srv.handleListRevisions(ctx, nil, ListRevisionsInput{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), list.Shown)
	assert.Len(t, list.Revisions, 2, "reopening does not record a new batch")

	_, _, err = srv.handleOpenRevision(ctx, nil, OpenRevisionInput{Seq: 99})
	assert.Error(t, err)
}

func TestListRevisions_Empty(t *testing.T) {
	srv := newTestServer(t)
	_, list, err := srv.handleListRevisions(context.Background(), nil, ListRevisionsInput{})
	require.NoError(t, err)
	assert.NotNil(t, list.Revisions)
	assert.Empty(t, list.Revisions)
}

func readReq(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func readText(t *testing.T, result *mcp.ReadResourceResult) string {
	t.Helper()
	require.Len(t, result.Contents, 1)
	return result.Contents[0].Text
}

func TestResources(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	res, err := srv.handleCurrentResource(ctx, readReq("waterfall://current"))
	require.NoError(t, err)
	assert.Contains(t, readText(t, res), "Trace: 4 spans")

	res, err = srv.handleDocumentResource(ctx, readReq("waterfall://document"))
	require.NoError(t, err)
	var doc render.Document
	require.NoError(t, json.Unmarshal([]byte(readText(t, res)), &doc))
	assert.Equal(t, 4, doc.SpanCount)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)

	res, err = srv.handleIssuesResource(ctx, readReq("waterfall://issues"))
	require.NoError(t, err)
	assert.Contains(t, readText(t, res), "(none)")

	res, err = srv.handleRevisionsResource(ctx, readReq("waterfall://revisions"))
	require.NoError(t, err)
	assert.Contains(t, readText(t, res), "inline")

	res, err = srv.handleSpanResource(ctx, readReq("waterfall://spans/a1"))
	require.NoError(t, err)
	assert.Contains(t, readText(t, res), "lookup  span=a1")

	_, err = srv.handleSpanResource(ctx, readReq("waterfall://spans/missing"))
	assert.Error(t, err)
	_, err = srv.handleSpanResource(ctx, readReq("waterfall://spans/"))
	assert.Error(t, err)
}

func TestIssuesResource_ListsProblems(t *testing.T) {
	srv := newTestServer(t)
	srv.Ingest("inline", []trace.Span{
		{SpanID: "x", Timestamp: "0", DurationMs: 1},
		{SpanID: "x", Timestamp: "1", DurationMs: 1},
		{SpanID: "y", Timestamp: "yesterday", DurationMs: 1},
	})

	res, err := srv.handleIssuesResource(context.Background(), readReq("waterfall://issues"))
	require.NoError(t, err)
	text := readText(t, res)
	assert.Contains(t, text, trace.ErrDuplicateSpanID.Error())
	assert.Contains(t, text, trace.ErrInvalidTimestamp.Error())
}

func TestExtractURIParam(t *testing.T) {
	got, err := extractURIParam("waterfall://spans/a%2Fb", "waterfall://spans/")
	require.NoError(t, err)
	assert.Equal(t, "a/b", got)

	_, err = extractURIParam("other://x", "waterfall://spans/")
	assert.Error(t, err)
}
