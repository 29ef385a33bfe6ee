package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/good-listener/wakelistener/internal/observe"
	"github.com/good-listener/wakelistener/internal/orchestrator"
	"github.com/good-listener/wakelistener/internal/orchestrator/history"
	"github.com/good-listener/wakelistener/internal/syncx"
	"github.com/good-listener/wakelistener/internal/trace"
)

// StatusSource reports engine state.
type StatusSource interface {
	Status() orchestrator.Status
}

// HistorySource provides finished sessions and live events.
type HistorySource interface {
	Recent(since time.Duration) []history.Entry
	Counts() map[string]int
	Events() <-chan history.Event
	Dropped() int
}

// Message types.
type StatusMessage struct {
	Type   string              `json:"type"`
	Status orchestrator.Status `json:"status"`
}

type EventMessage struct {
	Type  string        `json:"type"`
	Event history.Event `json:"event"`
}

// StatusResponse is the engine status plus the event feed's own counters.
type StatusResponse struct {
	orchestrator.Status
	DroppedEvents int `json:"dropped_events"`
	Clients       int `json:"clients"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Inference bool   `json:"inference"`
	State     string `json:"state"`
}

type UtterancesResponse struct {
	Entries []history.Entry `json:"entries"`
	Counts  map[string]int  `json:"counts"`
}

// Server handles HTTP and WebSocket connections. It never changes engine
// state.
type Server struct {
	status  StatusSource
	history HistorySource
	metrics *observe.Metrics
	promH   http.Handler

	inference *syncx.RWGuard[bool]

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one websocket connection. A single writer goroutine drains
// send, so events arrive in the order they were broadcast.
type client struct {
	send    chan EventMessage
	dropped int
}

// New creates a server. metricsHandler, when non-nil, is mounted at /metrics.
func New(status StatusSource, hist HistorySource, m *observe.Metrics, metricsHandler http.Handler) *Server {
	if m == nil {
		m = observe.Noop()
	}
	return &Server{
		status:    status,
		history:   hist,
		metrics:   m,
		promH:     metricsHandler,
		inference: syncx.NewGuard(false),
		clients:   make(map[*client]struct{}),
	}
}

// SetInferenceReady records the inference server's health.
func (s *Server) SetInferenceReady(ready bool) {
	if old := s.inference.Swap(ready); old != ready {
		slog.Info("inference server health changed", "serving", ready)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/utterances", s.handleUtterances)
	if s.promH != nil {
		mux.Handle("GET /metrics", s.promH)
	}

	// Apply middleware: trace -> metrics -> CORS
	return corsMiddleware(trace.Middleware(observe.Middleware(s.metrics)(mux)))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Inference: s.inference.Get(),
		State:     s.status.Status().State,
	}
	code := http.StatusOK
	if !resp.Inference {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        s.status.Status(),
		DroppedEvents: s.history.Dropped(),
		Clients:       s.Clients(),
	})
}

// handleUtterances serves sessions from the last ?since= seconds.
func (s *Server) handleUtterances(w http.ResponseWriter, r *http.Request) {
	since := DefaultHistoryWindow
	if v := r.URL.Query().Get("since"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a non-negative number of seconds"})
			return
		}
		since = time.Duration(secs * float64(time.Second))
	}
	entries := s.history.Recent(since)
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, UtterancesResponse{Entries: entries, Counts: s.history.Counts()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	log := trace.Logger(r.Context())
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := s.write(ctx, conn, StatusMessage{Type: "status", Status: s.status.Status()}); err != nil {
		log.Debug("websocket write error", "error", err)
		return
	}

	c := &client{send: make(chan EventMessage, ClientQueueSize)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("websocket disconnected", "remote", r.RemoteAddr)
			return
		case msg := <-c.send:
			if err := s.write(ctx, conn, msg); err != nil {
				log.Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg any) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// Broadcast queues engine events for every websocket client until ctx is
// cancelled or the event channel closes. A client whose queue is full
// misses the event.
func (s *Server) Broadcast(ctx context.Context) {
	events := s.history.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			msg := EventMessage{Type: "event", Event: evt}

			s.mu.Lock()
			for c := range s.clients {
				select {
				case c.send <- msg:
				default:
					c.dropped++
					slog.Warn("websocket client queue full, event dropped", "kind", evt.Kind, "dropped", c.dropped)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
