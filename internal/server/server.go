// Package server is the operator HTTP API of the swap-arb bot: health,
// live state, strategy config and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swaparb/internal/server/handler"
	"github.com/alanyoungcy/swaparb/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per client per minute; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Audit and Metrics may be nil.
type Handlers struct {
	Health   *handler.HealthHandler
	State    *handler.StateHandler
	Strategy *handler.StrategyHandler
	Audit    *handler.AuditHandler
	Metrics  http.Handler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Health and metrics bypass auth so load balancers and scrapers need no key.
func NewServer(cfg Config, handlers Handlers, limiter middleware.Limiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/state", handlers.State.GetState)
	api.HandleFunc("GET /api/swaps", handlers.State.GetSwaps)
	api.HandleFunc("GET /api/strategy/config", handlers.Strategy.GetConfig)
	api.HandleFunc("PUT /api/strategy/config", handlers.Strategy.UpdateConfig)
	api.HandleFunc("POST /api/strategy/kill", handlers.Strategy.Kill)
	if handlers.Audit != nil {
		api.HandleFunc("GET /api/audit", handlers.Audit.ListRecent)
	}

	var protected http.Handler = api
	protected = middleware.Auth(cfg.APIKey)(protected)
	protected = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(protected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	mux.Handle("/api/", protected)

	var h http.Handler = mux
	h = middleware.Logging(logger, "/api/health", "/metrics")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down with a bounded grace
// period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
