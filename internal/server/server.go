package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BlackMission/authrelay/internal/handler"
)

const readyTimeout = 2 * time.Second

// Config holds the server configuration.
type Config struct {
	Host string
	Port int
	// ExposeErrorDetails puts upstream diagnostics in error responses.
	ExposeErrorDetails bool
}

// Deps holds the service dependencies.
type Deps struct {
	Relay    handler.Relay
	Registry handler.Pinger
	// Audit is the optional audit stream, reported by /health/ready.
	Audit  handler.Pinger
	Logger *slog.Logger
	// Metrics receives the HTTP collectors and is served on /metrics.
	Metrics *prometheus.Registry
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New creates a new Server with all routes wired.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := deps.Metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	errs := handler.Errors{Logger: logger, ExposeDetails: cfg.ExposeErrorDetails}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger(logger))
	r.Use(recovery(logger))
	r.Use(latency(newHTTPMetrics(reg)))

	r.Get("/health", handler.Health())
	r.Get("/health/ready", handler.Ready(deps.Registry, deps.Audit, readyTimeout, errs))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/login", handler.Login(deps.Relay, errs))
	r.Get("/callback", handler.Callback(deps.Relay, errs))

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	return &Server{
		handler: r,
		logger:  logger,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Covers the provider and tenant calls made while serving /callback.
			WriteTimeout: 45 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening and serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("authrelay listening", "addr", s.httpServer.Addr)
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
