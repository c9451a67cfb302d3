// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

// Package api exposes the operational HTTP surface: event emission,
// health, metrics snapshots, DLQ inspection, and the Prometheus scrape
// endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/eventcore/internal/config"
	"github.com/tomtom215/eventcore/internal/engine"
	"github.com/tomtom215/eventcore/internal/logging"
)

// Server hosts the operational HTTP API in front of the engine.
type Server struct {
	cfg    config.ServerConfig
	engine *engine.Engine
	router chi.Router
}

// NewServer builds the API server and its routes.
func NewServer(cfg config.ServerConfig, eng *engine.Engine) *Server {
	s := &Server{cfg: cfg, engine: eng}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleLiveness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		emit := r
		if s.cfg.RateLimitReqs > 0 {
			emit = r.With(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
		}
		emit.Post("/events", s.handleEmit)

		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleSnapshot)
		r.Get("/dlq", s.handleDLQ)
	})

	return r
}

// emitRequest is the emission payload accepted on POST /api/v1/events.
type emitRequest struct {
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Priority      string          `json:"priority,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	NonRetryable  bool            `json:"non_retryable,omitempty"`
}

// emitResponse mirrors engine.EmitResult for the wire.
type emitResponse struct {
	Accepted bool   `json:"accepted"`
	EventID  string `json:"event_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, emitResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result := s.engine.Emit(r.Context(), req.Type, req.Payload, engine.EmitOptions{
		Priority:      engine.Priority(req.Priority),
		CorrelationID: req.CorrelationID,
		NonRetryable:  req.NonRetryable,
	})

	resp := emitResponse{Accepted: result.Accepted, EventID: result.EventID}
	if result.Err != nil {
		resp.Error = result.Err.Error()
		writeJSON(w, emitStatus(result.Err), resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// emitStatus maps emission error kinds to HTTP status codes.
func emitStatus(err error) int {
	var validationErr *engine.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrEventTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrDisabled),
		errors.Is(err, engine.ErrNotInitialized),
		errors.Is(err, engine.ErrDraining):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrNoHandler):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.engine.Health()
	status := http.StatusOK
	if report.Status == engine.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleDLQ(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.DLQ().Entries())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("write response failed")
	}
}

// Serve runs the HTTP server until the context is canceled. Implements
// suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}
