// Package server exposes agent turns over HTTP.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/storage"
)

const defaultMaxBodyBytes = 64 * 1024

// TurnRunner executes one agent turn. *agent.Loop satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (agent.Outcome, error)
}

// TurnRecorder persists turn records. *storage.Journal satisfies it.
type TurnRecorder interface {
	Record(ctx context.Context, rec storage.TurnRecord) error
}

// Config holds all dependencies and configuration for creating a Server.
// Journal is optional.
type Config struct {
	Runner  TurnRunner
	Journal TurnRecorder
	Logger  *slog.Logger

	Addr                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	Version             string
}

// Server is the notewright HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New creates a server with all routes configured.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = defaultMaxBodyBytes
	}
	h := &handlers{
		runner:       cfg.Runner,
		journal:      cfg.Journal,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxRequestBodyBytes,
		version:      cfg.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /chat", h.handleChat)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests on the configured address.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server starting", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
