// Package server exposes the orchestration engine over HTTP: request
// submission, resume-with-input, circuit breaker visibility, and a
// real-time event stream. Grounded on the teacher's pkg/server/server.go
// lifecycle (Start/Stop/signal handling, graceful shutdown with a timeout)
// and pkg/server/http.go's route/middleware layout, rewritten against
// chi instead of a bare http.ServeMux since the A2A-specific routing
// http.go built (per-agent JSON-RPC, agent cards, gRPC transport
// selection) has no SPEC_FULL.md component to serve.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/taskforge/internal/circuitbreaker"
	"github.com/kadirpekel/taskforge/internal/engine"
	"github.com/kadirpekel/taskforge/internal/eventstore"
	"github.com/kadirpekel/taskforge/internal/metrics"
)

// Server is the HTTP/WS adapter in front of an OrchestrationEngine.
type Server struct {
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration

	engine  *engine.OrchestrationEngine
	events  *eventstore.Store
	breaker *circuitbreaker.Breaker
	metrics *metrics.Metrics

	httpServer *http.Server
}

// Config carries the subset of internal/config.ServerConfig this adapter
// needs, kept separate from the config package so server has no import
// cycle back to it.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New builds a Server wired to the given engine, event store, and
// (optional) circuit breaker and metrics. A nil breaker disables the
// circuit endpoint (404); a nil metrics disables /metrics (503, per
// metrics.Handler's own convention).
func New(cfg Config, eng *engine.OrchestrationEngine, events *eventstore.Store, breaker *circuitbreaker.Breaker, m *metrics.Metrics) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	return &Server{
		addr:         cfg.Addr,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		engine:       eng,
		events:       events,
		breaker:      breaker,
		metrics:      m,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tasks", s.handleSubmit)
		r.Post("/tasks/{taskId}/input", s.handleResume)
		r.Get("/agents/{agentId}/circuit", s.handleCircuit)
		r.Get("/circuit", s.handleCircuitAll)
		r.Get("/tasks/{taskId}/events", s.handleTaskEvents)
		r.Get("/events/stream", s.handleEventStream)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully. Mirrors the teacher's Start(ctx)/select-on-ctx.Done pattern.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	slog.Info("server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the HTTP server with a bounded timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.RecordHTTPRequest(r.Method, route, fmt.Sprintf("%d", ww.Status()), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequest struct {
	TaskID          string                   `json:"taskId"`
	Request         string                   `json:"request"`
	AvailableAgents []engine.AgentDescriptor `json:"availableAgents"`
	Metadata        map[string]any           `json:"metadata"`
}

type taskResponse struct {
	TaskID  string  `json:"taskId"`
	Message *string `json:"message,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TaskID == "" || req.Request == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "taskId and request are required"})
		return
	}

	msg, err := s.engine.ProcessRequest(r.Context(), req.TaskID, req.Request, req.AvailableAgents, req.Metadata)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusAccepted
	if msg != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, taskResponse{TaskID: req.TaskID, Message: msg})
}

type resumeRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	msg, err := s.engine.ResumeWithUserInput(r.Context(), taskID, req.Input)
	if err != nil {
		if errors.Is(err, engine.ErrNoPendingStep) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	// An unknown task surfaces as a message rather than an error (the
	// engine treats "does this task exist" as a lookup result, not a
	// failure) — map that one known message to 404 for HTTP clients.
	if msg != nil && *msg == "workflow not found" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": *msg})
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{TaskID: taskID, Message: msg})
}

func (s *Server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "circuit breaker not configured"})
		return
	}
	agentID := chi.URLParam(r, "agentId")
	summary := s.breaker.Summary()
	entry, ok := summary[agentID]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"agentId": agentID, "state": string(circuitbreaker.Closed)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agentId": agentID, "state": string(entry.State), "stats": entry.Stats})
}

func (s *Server) handleCircuitAll(w http.ResponseWriter, _ *http.Request) {
	if s.breaker == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "circuit breaker not configured"})
		return
	}
	summary := s.breaker.Summary()
	out := make(map[string]any, len(summary))
	for id, entry := range summary {
		out[id] = map[string]any{"state": string(entry.State), "stats": entry.Stats}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	events := s.events.GetTaskEvents(taskID)
	writeJSON(w, http.StatusOK, toPayloads(events))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
