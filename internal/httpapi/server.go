package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/spectre/internal/config"
	"github.com/ent0n29/spectre/internal/memory"
	"github.com/ent0n29/spectre/internal/observability"
	"github.com/ent0n29/spectre/internal/protocol"
	"github.com/ent0n29/spectre/internal/session"
	"github.com/ent0n29/spectre/internal/toolcatalog"
)

type Orchestrator interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
}

// MemoryReader is the read side of conversation memory served by /api/memory.
type MemoryReader interface {
	Snapshot() memory.Snapshot
	History(userID string) []memory.Message
	UserCount() int
}

type ToolCatalog interface {
	All() toolcatalog.Listing
	ByCategory(category string) toolcatalog.Listing
	Search(query string) toolcatalog.Listing
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	orchestrator Orchestrator
	memory       MemoryReader
	tools        ToolCatalog
	metrics      *observability.Metrics
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	static       http.Handler
}

type Options struct {
	Sessions     *session.Manager
	Orchestrator Orchestrator
	Memory       MemoryReader
	Tools        ToolCatalog
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

func New(cfg config.Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager()
	}
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: opts.Orchestrator,
		memory:       opts.Memory,
		tools:        opts.Tools,
		metrics:      opts.Metrics,
		logger:       logger,
		static:       newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// The socket historically lives on the root path; browsers get the UI.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.handleWS(w, r)
			return
		}
		servePage(w, r, "index.html")
	})
	r.Get("/ws", s.handleWS)
	r.Get("/memory", func(w http.ResponseWriter, r *http.Request) { servePage(w, r, "memory.html") })
	r.Get("/tools", func(w http.ResponseWriter, r *http.Request) { servePage(w, r, "tools.html") })
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/memory", s.handleMemory)
		r.Get("/memory/{userId}", s.handleUserMemory)
		r.Get("/mcp-tools", s.handleTools)
		r.Get("/perf/latency", s.handlePerfLatency)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.orchestrator == nil || s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "gateway not fully configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"active_connections": s.sessions.ActiveCount(),
		"memory_users":       s.memory.UserCount(),
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, _ *http.Request) {
	if s.memory == nil {
		respondJSON(w, http.StatusOK, memory.Snapshot{})
		return
	}
	snap := s.memory.Snapshot()
	if snap == nil {
		snap = memory.Snapshot{}
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUserMemory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	history := []memory.Message{}
	if s.memory != nil {
		if h := s.memory.History(userID); h != nil {
			history = h
		}
	}
	respondJSON(w, http.StatusOK, history)
}

// handleTools applies category before search, matching the query
// precedence of the catalog page.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		respondJSON(w, http.StatusOK, toolcatalog.Listing{})
		return
	}
	q := r.URL.Query()
	switch {
	case strings.TrimSpace(q.Get("category")) != "":
		respondJSON(w, http.StatusOK, s.tools.ByCategory(strings.TrimSpace(q.Get("category"))))
	case strings.TrimSpace(q.Get("search")) != "":
		respondJSON(w, http.StatusOK, s.tools.Search(strings.TrimSpace(q.Get("search"))))
	default:
		respondJSON(w, http.StatusOK, s.tools.All())
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := s.sessions.Open()
	defer func() {
		_, _ = s.sessions.Teardown(sess.ID)
		s.metrics.SetActiveConnections(s.sessions.ActiveCount())
		s.metrics.SessionEvent("ws_disconnected")
	}()
	s.metrics.SetActiveConnections(s.sessions.ActiveCount())
	s.metrics.SessionEvent("ws_connected")
	s.logger.Info("client connected", "session_id", sess.ID, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		if err := s.orchestrator.RunConnection(ctx, sess, inbound, outbound); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("connection ended with error", "session_id", sess.ID, "error", err)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.SessionEvent("ws_write_failed")
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessage("outbound", string(t))
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.WSMessage("inbound", "invalid")
			select {
			case outbound <- protocol.NewError(err.Error()):
			default:
				// Writes stay single-threaded; drop when the queue is saturated.
				s.metrics.SessionEvent("ws_error_dropped")
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.logger.Info("client disconnected", "session_id", sess.ID)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.Identify:
		return m.Type, true
	case protocol.Identified:
		return m.Type, true
	case protocol.Chat:
		return m.Type, true
	case protocol.Response:
		return m.Type, true
	case protocol.TTS:
		return m.Type, true
	case protocol.Audio:
		return m.Type, true
	case protocol.Error:
		return m.Type, true
	default:
		return "", false
	}
}
