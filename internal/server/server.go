// Package server exposes the assessment service over HTTP: a blocking JSON
// endpoint, a server-sent-events stream, a websocket stream, history
// listing, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aurea-hq/underwriting/internal/app"
	"github.com/aurea-hq/underwriting/internal/store"
)

// userHeader carries the caller identity. Authentication itself happens
// upstream; the service only records the id.
const userHeader = "X-User-ID"

// Server is the HTTP front of the assessment service.
type Server struct {
	app    *app.App
	logger *slog.Logger
}

// New creates a Server over an assembled App.
func New(a *app.App) *Server {
	return &Server{app: a, logger: a.Logger()}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assess", s.handleAssess)
	mux.HandleFunc("GET /v1/assess/stream", s.handleAssessSSE)
	mux.HandleFunc("GET /v1/assess/ws", s.handleAssessWS)
	mux.HandleFunc("GET /v1/assessments/{id}", s.handleAssessment)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.app.Metrics().Registry(), promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req app.AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	req.UserID = callerID(r)

	resp, err := s.app.Assess(r.Context(), req)
	if err != nil {
		if clientGone(r, err) {
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	assessment, rationale, err := s.app.Assessment(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"assessment": assessment,
		"rationale":  rationale,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%s header is required", userHeader))
		return
	}
	history, err := s.app.History(r.Context(), userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if history == nil {
		history = []store.Assessment{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"assessments": history})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response.", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func callerID(r *http.Request) string {
	return r.Header.Get(userHeader)
}

// clientGone reports whether err is the request's own cancellation surfacing
// through the assessment. Downstream layers wrap the context error, so this
// must match wrapped cancellations, not just the bare sentinel.
func clientGone(r *http.Request, err error) bool {
	if r.Context().Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
