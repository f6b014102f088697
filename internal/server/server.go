// Package server exposes the step gate of a running pipeline over HTTP.
//
// The server never touches pipeline state: it reads the published status and
// signals the engine's gate, which hands control to the processing loop one
// edge at a time.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/streamrpq/pkg/engine"
)

// Pipeline is the part of the engine the server needs.
type Pipeline interface {
	Status() engine.Status
	Gate() *engine.Gate
}

// Server holds the HTTP interface of the step gate.
type Server struct {
	Pipeline Pipeline

	httpServer  *http.Server
	authToken   string
	stepTimeout time.Duration
}

// NewServer builds the server. An empty authToken disables authentication.
func NewServer(p Pipeline, httpAddr string, authToken string) *Server {
	s := &Server{
		Pipeline:    p,
		authToken:   authToken,
		stepTimeout: 30 * time.Second,
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Recovery -> Logging -> Auth -> Mux
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           rootMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until Shutdown.
func (s *Server) Run() error {
	slog.Info("Debug server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	slog.Info("Debug server listening", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting at most 5 seconds for open requests.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
}
