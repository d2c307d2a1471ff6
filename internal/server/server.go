// Package server exposes the engine over HTTP and WebSocket. Handlers are
// thin: decode, call the engine facade, map the error taxonomy onto status
// codes, encode.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kubana90/operator-996-cognitive-os/internal/core"
	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// Server serves the engine API.
type Server struct {
	engine   *core.Engine
	addr     string
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a server for the engine on the given address.
func New(engine *core.Engine, addr string) *Server {
	s := &Server{
		engine: engine,
		addr:   addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /event/add", s.handleAddEvent)
	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("GET /events/{id}", s.handleGetEvent)
	mux.HandleFunc("POST /import/events", s.handleImport)
	mux.HandleFunc("POST /patterns/detect", s.handleDetectPatterns)
	mux.HandleFunc("GET /patterns", s.handlePatterns)
	mux.HandleFunc("POST /anomalies/detect", s.handleDetectAnomalies)
	mux.HandleFunc("GET /anomalies", s.handleAnomalies)
	mux.HandleFunc("POST /scenario/simulate", s.handleSimulate)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /export/full", s.handleExport)
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws/live", s.handleLive)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler exposes the route table, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Server("Listening on %s", s.addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var spec types.EventSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, &types.ValidationError{Field: "body", Reason: "invalid json: " + err.Error()})
		return
	}

	event, err := s.engine.AddEvent(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.Filter{
		EventType: types.EventType(q.Get("event_type")),
		Tag:       q.Get("tag"),
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = t
		}
	}
	if filter.EventType != "" && !filter.EventType.Valid() {
		writeError(w, &types.ValidationError{Field: "event_type", Reason: "unknown event type"})
		return
	}

	events := s.engine.ListEvents(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.engine.GetEvent(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Events []types.EventSpec `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, &types.ValidationError{Field: "body", Reason: "invalid json: " + err.Error()})
		return
	}

	ids, errs := s.engine.BulkImport(r.Context(), payload.Events)
	failures := make([]string, 0, len(errs))
	for _, err := range errs {
		failures = append(failures, err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported_ids": ids,
		"imported":     len(ids),
		"failed":       len(failures),
		"errors":       failures,
	})
}

func (s *Server) handleDetectPatterns(w http.ResponseWriter, r *http.Request) {
	found := s.engine.DetectPatterns(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": found,
		"count":    len(found),
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	found := s.engine.Patterns()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": found,
		"count":    len(found),
	})
}

func (s *Server) handleDetectAnomalies(w http.ResponseWriter, r *http.Request) {
	found := s.engine.DetectAnomalies(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": found,
		"count":     len(found),
	})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, _ *http.Request) {
	found := s.engine.Anomalies()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": found,
		"count":     len(found),
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Scenario string `json:"scenario"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, &types.ValidationError{Field: "body", Reason: "invalid json: " + err.Error()})
		return
	}

	pred, err := s.engine.Simulate(r.Context(), payload.Scenario)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.engine.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Export())
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Profile())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.HealthCheck(r.Context()))
}

// =============================================================================
// WEBSOCKET LIVE FEED
// =============================================================================

// handleLive upgrades to WebSocket and serves both directions: engine
// updates stream out as they happen, and small text commands ("ping",
// "patterns", "anomalies") answer on demand.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.ServerError("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.engine.Subscribe()
	defer cancel()

	logging.Server("Live subscriber connected from %s", r.RemoteAddr)

	// Reader: commands from the client. Closes done on disconnect.
	done := make(chan struct{})
	commands := make(chan string, 4)
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case commands <- string(msg):
			default:
			}
		}
	}()

	for {
		select {
		case <-done:
			logging.Server("Live subscriber disconnected")
			return
		case cmd := <-commands:
			var reply interface{}
			switch cmd {
			case "ping":
				reply = map[string]string{"type": "pong"}
			case "patterns":
				reply = map[string]interface{}{"type": "patterns", "data": s.engine.Patterns()}
			case "anomalies":
				reply = map[string]interface{}{"type": "anomalies", "data": s.engine.Anomalies()}
			default:
				reply = map[string]string{"type": "error", "error": "unknown command: " + cmd}
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case types.IsValidation(err):
		status = http.StatusBadRequest
	case types.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrEmbeddingUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
