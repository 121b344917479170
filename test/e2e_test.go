package test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/otlp-waterfall/internal/mcpserver"
	"github.com/tobert/otlp-waterfall/internal/spanfile"
	"github.com/tobert/otlp-waterfall/internal/storage"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// TestEndToEnd verifies the complete workflow:
// 1. Write a trace in the collector file exporter format
// 2. Watch the file and feed reloads into the MCP server
// 3. Read the waterfall through an MCP client
// 4. Navigate and inspect a span
// 5. Append a second trace and see the reload recorded as a revision
func TestEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Sample trace on disk
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	appendSample(t, path, 1)

	// 2. Session, history, MCP server and watcher
	session := view.NewSession(view.Options{})
	srv, err := mcpserver.NewServer(session, storage.NewBatchHistory(8))
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}

	watcher, err := spanfile.NewWatcher(spanfile.WatcherConfig{Path: path, Debounce: 20 * time.Millisecond},
		func(b spanfile.Batch) {
			if b.Err != nil {
				t.Logf("reload: %v", b.Err)
			}
			if len(b.Spans) > 0 {
				srv.Ingest(b.Path, b.Spans)
			}
		})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	cs := connect(ctx, t, srv)

	// 3. Waterfall over MCP
	var wf mcpserver.WaterfallOutput
	callTool(ctx, t, cs, "get_waterfall", map[string]any{}, &wf)

	if wf.Document.SpanCount != 5 || wf.Document.RootCount != 1 {
		t.Fatalf("expected 5 spans under 1 root, got %d spans, %d roots", wf.Document.SpanCount, wf.Document.RootCount)
	}
	for _, want := range []string{"Trace: 5 spans", "http.request", "db.connect", "!! ERR"} {
		if !strings.Contains(wf.Text, want) {
			t.Errorf("waterfall text missing %q:\n%s", want, wf.Text)
		}
	}
	root := wf.Document.Rows[0]
	if wf.Document.Focused != root.SpanID {
		t.Errorf("expected focus on root %s, got %s", root.SpanID, wf.Document.Focused)
	}

	// 4. Navigate to the first child and inspect it
	var nav mcpserver.NavigateOutput
	callTool(ctx, t, cs, "navigate", map[string]any{"key": "ArrowDown"}, &nav)
	if !nav.Changed || nav.Focused != wf.Document.Rows[1].SpanID {
		t.Fatalf("ArrowDown should focus %s, got %+v", wf.Document.Rows[1].SpanID, nav)
	}

	var span struct {
		Span struct {
			SpanName string `json:"span_name"`
			Service  string `json:"service"`
		} `json:"span"`
		Depth   int  `json:"depth"`
		Visible bool `json:"visible"`
	}
	callTool(ctx, t, cs, "get_span", map[string]any{}, &span)
	if span.Span.SpanName != "auth.check" || span.Depth != 1 || !span.Visible {
		t.Errorf("unexpected focused span: %+v", span)
	}

	text := readResource(ctx, t, cs, "waterfall://current")
	if !strings.Contains(text, "> ") {
		t.Errorf("current waterfall should mark the focused row:\n%s", text)
	}

	// 5. A second trace in the file becomes a new revision
	appendSample(t, path, 2)

	var revs mcpserver.ListRevisionsOutput
	deadline := time.Now().Add(5 * time.Second)
	for {
		callTool(ctx, t, cs, "list_revisions", map[string]any{}, &revs)
		if len(revs.Revisions) == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(revs.Revisions) != 2 {
		t.Fatalf("expected 2 revisions after append, got %d", len(revs.Revisions))
	}
	if revs.Shown != revs.Revisions[1].Seq || revs.Revisions[1].SpanCount != 10 {
		t.Errorf("expected the 10-span reload on screen, got %+v", revs)
	}

	callTool(ctx, t, cs, "get_waterfall", map[string]any{}, &wf)
	if wf.Document.RootCount != 2 {
		t.Errorf("expected 2 roots after reload, got %d", wf.Document.RootCount)
	}

	var opened mcpserver.LoadSpansOutput
	callTool(ctx, t, cs, "open_revision", map[string]any{"seq": revs.Revisions[0].Seq}, &opened)
	if opened.SpanCount != 5 || !opened.Changed {
		t.Errorf("reopening the first revision should show 5 spans, got %+v", opened)
	}

	t.Logf("✅ End-to-end test passed: %d revisions, %d spans reopened", len(revs.Revisions), opened.SpanCount)
}

// appendSample appends one trace with the given seed to path.
func appendSample(t *testing.T, path string, seed uint32) {
	t.Helper()
	line, err := spanfile.EncodeOTLPLine(spanfile.Sample(time.Now(), seed))
	if err != nil {
		t.Fatalf("failed to encode sample: %v", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		t.Fatalf("failed to write sample: %v", err)
	}
}

func connect(ctx context.Context, t *testing.T, srv *mcpserver.Server) *mcp.ClientSession {
	t.Helper()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

// callTool calls a tool and decodes its structured result into out.
func callTool(ctx context.Context, t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if res.IsError {
		t.Fatalf("%s returned a tool error: %+v", name, res.Content)
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("%s: marshal structured content: %v", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("%s: decode structured content: %v", name, err)
	}
}

func readResource(ctx context.Context, t *testing.T, cs *mcp.ClientSession, uri string) string {
	t.Helper()
	res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	if len(res.Contents) == 0 {
		t.Fatalf("read %s: no contents", uri)
	}
	return res.Contents[0].Text
}
