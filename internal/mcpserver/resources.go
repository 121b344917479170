package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/otlp-waterfall/internal/render"
)

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "waterfall://current",
		Name:        "current",
		Description: "Text rendering of the visible waterfall rows with focus and selection.",
		MIMEType:    "text/plain",
	}, s.handleCurrentResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "waterfall://document",
		Name:        "document",
		Description: "The visible waterfall as JSON: rows, bar geometry, markers and issues.",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "waterfall://issues",
		Name:        "issues",
		Description: "Data problems found while building the span tree: bad timestamps, duplicate ids, cycles.",
		MIMEType:    "text/plain",
	}, s.handleIssuesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "waterfall://revisions",
		Name:        "revisions",
		Description: "Span batches loaded so far, oldest first.",
		MIMEType:    "text/plain",
	}, s.handleRevisionsResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "waterfall://spans/{id}",
		Name:        "span-detail",
		Description: "Every field of one span with its offset, depth and issues.",
		MIMEType:    "text/plain",
	}, s.handleSpanResource)
}

// ─── Static resource handlers ───────────────────────────────────────────

func (s *Server) handleCurrentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	return textResult(req.Params.URI, s.snapshotText(s.session.Snapshot(), 0)), nil
}

func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	doc := render.NewDocument(s.session.Snapshot(), s.colorByService)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal waterfall document: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) handleIssuesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	issues := s.session.Snapshot().Issues

	var b strings.Builder
	b.WriteString("Issues\n")
	b.WriteString("══════\n")
	if len(issues) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, is := range issues {
		fmt.Fprintf(&b, "  • %s\n", is.Error())
	}
	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleRevisionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	revs := s.history.List()

	var b strings.Builder
	b.WriteString("Revisions\n")
	b.WriteString("═════════\n")
	if len(revs) == 0 {
		b.WriteString("  (none loaded)\n")
	}
	for _, r := range revs {
		fmt.Fprintf(&b, "  %3d  %s  %5d spans  %016x  %s\n",
			r.Seq, r.LoadedAt.Format("15:04:05.000"), r.SpanCount, r.Fingerprint, r.Source)
	}
	return textResult(req.Params.URI, b.String()), nil
}

// ─── Template resource handlers ─────────────────────────────────────────

func (s *Server) handleSpanResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id, err := extractURIParam(req.Params.URI, "waterfall://spans/")
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	snap := s.session.Snapshot()
	n, ok := snap.Trace.Node(id)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return textResult(req.Params.URI, render.Detail(n, snap.Trace)), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// extractURIParam extracts the parameter value from a URI by stripping the prefix
// and URL-decoding the remainder.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:  uri,
			Text: text,
		}},
	}
}
