// Package mcpserver exposes a waterfall session to agents over the Model
// Context Protocol. Agents load span batches, read the rendered waterfall
// and drive the same navigation events a person would from the keyboard.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/storage"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Server wraps the MCP server around a view session and its load history.
type Server struct {
	mcpServer *mcp.Server
	session   *view.Session
	history   *storage.BatchHistory
	logger    *zap.Logger

	colorByService bool
	width          int
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Logger         *zap.Logger
	ColorByService bool // bar colours by service instead of status
	Width          int  // text waterfall width; zero uses the renderer default
}

// NewServer creates an MCP server over session. history records every batch
// loaded through the server so agents can list and reopen them.
func NewServer(session *view.Session, history *storage.BatchHistory, opts ...ServerOptions) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("view session cannot be nil")
	}
	if history == nil {
		return nil, fmt.Errorf("batch history cannot be nil")
	}

	var o ServerOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	s := &Server{
		session:        session,
		history:        history,
		logger:         o.Logger,
		colorByService: o.ColorByService,
		width:          o.Width,
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "otlp-waterfall",
		Title:   "Span Waterfall for Agents",
		Version: Version,
	}, &mcp.ServerOptions{
		Instructions: `Span hierarchy and waterfall timeline viewer.

Workflow: load_spans (file path or inline spans) -> get_waterfall -> navigate/select_span -> get_span.

Tools: load_spans, get_waterfall, navigate, select_span, get_span, list_revisions, open_revision.
Resources: waterfall://current, waterfall://document, waterfall://issues, waterfall://revisions, waterfall://spans/{id}.`,
		SubscribeHandler:   func(_ context.Context, _ *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(_ context.Context, _ *mcp.UnsubscribeRequest) error { return nil },
	})

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server on stdio transport.
// It blocks until the context is cancelled or EOF is received on stdin.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for use with alternative transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Ingest records spans from source and shows them in the session. It
// returns the stored revision and whether the view changed. File watchers
// and the load_spans tool both come through here.
func (s *Server) Ingest(source string, spans []trace.Span) (storage.Revision, bool) {
	rev, _ := s.history.Push(source, spans)
	changed := s.session.Load(rev.Spans)
	s.logger.Debug("spans ingested",
		zap.String("source", source),
		zap.Uint64("seq", rev.Seq),
		zap.Int("spans", rev.SpanCount),
		zap.Bool("changed", changed))
	return rev, changed
}
