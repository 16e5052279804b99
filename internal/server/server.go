// Package server hosts the scheduler's two HTTP/JSON surfaces: the
// submission service users talk to and the execution service the
// physical lab talks to. Business failures travel inside operation
// responses as ErrorDetail; HTTP status codes only signal transport
// problems.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/photonqc/scheduler/internal/common"
)

// Server wraps one of the two HTTP surfaces.
type Server struct {
	name   string
	server *http.Server
	logger *common.Logger
}

// routeRegistrar registers operation routes on a mux.
type routeRegistrar interface {
	Register(mux *http.ServeMux)
}

// NewServer creates an HTTP server for the given surface.
func NewServer(name string, cfg common.ServerConfig, handlers routeRegistrar, logger *common.Logger) *Server {
	s := &Server{
		name:   name,
		logger: logger,
	}

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)

	handler := applyMiddleware(mux, logger, cfg.MaxWorkers)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("server", s.name).
		Str("addr", s.server.Addr).
		Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.name,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
