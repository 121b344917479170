// Package webui serves the browser waterfall and streams state over a
// WebSocket. The browser is a thin renderer: every key press and click is
// sent to the server, reduced by the shared session, and the resulting
// snapshot is pushed back to every connected page.
package webui

import (
	"context"
	"embed"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/render"
	"github.com/tobert/otlp-waterfall/internal/view"
)

//go:embed static/index.html
var staticFiles embed.FS

const keepaliveInterval = 15 * time.Second

// Server serves the embedded web UI, a JSON endpoint and WebSocket updates.
type Server struct {
	session        *view.Session
	logger         *zap.Logger
	colorByService bool

	extra map[string]http.Handler
}

// New creates a web UI server over session.
func New(session *view.Session, logger *zap.Logger, colorByService bool) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		session:        session,
		logger:         logger,
		colorByService: colorByService,
		extra:          make(map[string]http.Handler),
	}
}

// Mount adds a handler served next to the UI by ListenAndServe.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.extra[pattern] = h
}

// RegisterRoutes attaches web UI routes to an existing ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ui/", s.handleUI)
	mux.HandleFunc("GET /ui", s.handleUIRedirect)
	mux.HandleFunc("GET /{$}", s.handleUIRedirect)
	mux.HandleFunc("GET /api/waterfall", s.handleWaterfall)
	mux.HandleFunc("POST /api/event", s.handleEvent)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	for pattern, h := range s.extra {
		mux.Handle(pattern, h)
	}
}

// ListenAndServe runs a standalone HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("web UI listening", zap.String("url", "http://"+addr+"/ui/"))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUIRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) document() render.Document {
	return render.NewDocument(s.session.Snapshot(), s.colorByService)
}

func (s *Server) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.document())
}

// clientMessage is sent by the page: either a key name or an action with
// an optional span id.
type clientMessage struct {
	Key    string `json:"key,omitempty"`
	Action string `json:"action,omitempty"`
	SpanID string `json:"span_id,omitempty"`
}

func (m clientMessage) event() (view.Event, error) {
	return view.ParseEvent(m.Key, m.Action, m.SpanID)
}

// eventResponse reports whether the event changed anything.
type eventResponse struct {
	Changed  bool            `json:"changed"`
	Document render.Document `json:"document"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var msg clientMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid event: "+err.Error(), http.StatusBadRequest)
		return
	}
	ev, err := msg.event()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	changed := s.session.Dispatch(ev)
	s.writeJSON(w, eventResponse{Changed: changed, Document: s.document()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // localhost tool; any origin
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	notifyCh, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	// Client messages are applied as they arrive; the resulting change
	// notification drives the reply.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Debug("webui: bad client message", zap.Error(err))
				continue
			}
			ev, err := msg.event()
			if err != nil {
				s.logger.Debug("webui: ignoring client message",
					zap.String("key", msg.Key), zap.String("action", msg.Action))
				continue
			}
			s.session.Dispatch(ev)
		}
	}()

	s.sendDocument(ctx, conn)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case <-readDone:
			return
		case <-notifyCh:
			s.sendDocument(ctx, conn)
		case <-keepalive.C:
			s.sendDocument(ctx, conn)
		}
	}
}

func (s *Server) sendDocument(ctx context.Context, conn *websocket.Conn) {
	data, err := json.Marshal(s.document())
	if err != nil {
		s.logger.Error("webui: failed to marshal document", zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// A failed write means the connection is gone; the read loop ends too.
	_ = conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("webui: failed to write JSON", zap.Error(err))
	}
}
