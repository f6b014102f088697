package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sanonone/streamrpq/pkg/engine"
)

func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /step", s.handleStep)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /continue", s.handleContinue)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, s.Pipeline.Status())
}

// handleStep releases one edge and answers once it has been processed.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.stepTimeout)
	defer cancel()

	n, err := s.Pipeline.Gate().Step(ctx)
	switch {
	case err == nil:
		s.writeHTTPResponse(w, http.StatusOK, StepResponse{Processed: n, Status: s.Pipeline.Status()})
	case errors.Is(err, engine.ErrNotPaused):
		s.writeHTTPError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrStopped):
		s.writeHTTPError(w, http.StatusGone, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeHTTPError(w, http.StatusGatewayTimeout, "step not acknowledged in time")
	default:
		s.writeHTTPError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	g := s.Pipeline.Gate()
	g.Pause()
	slog.Info("Pipeline paused")
	s.writeHTTPResponse(w, http.StatusOK, GateResponse{Paused: g.Paused(), Status: s.Pipeline.Status()})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	g := s.Pipeline.Gate()
	g.Continue()
	slog.Info("Pipeline resumed")
	s.writeHTTPResponse(w, http.StatusOK, GateResponse{Paused: g.Paused(), Status: s.Pipeline.Status()})
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, ErrorResponse{Error: message})
}
