// Package panel serves a read-only HTTP inspection surface: JSON views of
// chains, executions, agents, and analytics, chain diagrams, and a
// Server-Sent Events stream of live execution events.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lattica-ai/chaincore/internal/service"
	"github.com/lattica-ai/chaincore/internal/streaming"
)

// Deps holds the dependencies for the panel server.
type Deps struct {
	Service *service.Service
	Hub     streaming.EventHub
	Logger  *slog.Logger
}

// Server is the read-only HTTP inspection server.
type Server struct {
	deps Deps
	srv  *http.Server
}

// NewServer creates a panel Server listening on addr once started.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{deps: deps}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for the panel routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/chains", s.handleChains)
	mux.HandleFunc("GET /api/chains/{id}", s.handleChainDetail)
	mux.HandleFunc("GET /api/chains/{id}/executions", s.handleChainExecutions)
	mux.HandleFunc("GET /api/chains/{id}/analytics", s.handleChainAnalytics)
	mux.HandleFunc("GET /api/chains/{id}/diagram", s.handleChainDiagram)
	mux.HandleFunc("GET /api/executions/{id}", s.handleExecutionDetail)
	mux.HandleFunc("GET /api/executions/{id}/events", s.handleExecutionEvents)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/scheduled-runs", s.handleScheduledRuns)

	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/executions/{id}", s.handleSSEExecution)

	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.deps.Logger.Info("panel listener started", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("panel listener stopped", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
