// Package daemon serves the radquest JSON API over HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/radquest/radquest/internal/catalog"
	"github.com/radquest/radquest/internal/config"
	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/ledger"
	"github.com/radquest/radquest/internal/lifecycle"
	"github.com/radquest/radquest/internal/metrics"
	"github.com/radquest/radquest/internal/progression"
)

// Version is reported by the status endpoint
const Version = "0.1.0"

// maxBodyBytes limits request bodies
const maxBodyBytes = 1 << 20

// Server represents the radquest daemon HTTP server
type Server struct {
	cfg     *config.Config
	server  *http.Server
	router  *http.ServeMux
	logger  *slog.Logger
	started time.Time

	// Services
	ledger      *ledger.Service
	progression *progression.Service
	lifecycle   *lifecycle.Controller
	catalog     catalog.Catalog
	metrics     *metrics.Metrics
	limiter     *rateLimiter // nil when submissions are unlimited

	providers     []string
	evaluation    bool
	eventsEnabled bool
	closers       []func() error
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config  *config.Config
	DataDir string // holds the SQLite database when no DSN is configured
	Logger  *slog.Logger
}

// NewServer opens storage, content, the judge and the event queue as
// configured and wires the services behind the HTTP routes.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newServer(cfg.Config, cfg.Logger, c), nil
}

func newServer(cfg *config.Config, logger *slog.Logger, c *components) *Server {
	s := &Server{
		cfg:     cfg,
		router:  http.NewServeMux(),
		logger:  logger,
		started: time.Now(),

		ledger: ledger.NewService(c.store, c.catalog, c.evaluator, ledger.Options{
			MinReasoningLength: cfg.Ledger.MinReasoningLength,
			Logger:             logger,
			Metrics:            c.metrics,
			Events:             c.events,
		}),
		progression: progression.NewService(c.store, logger),
		lifecycle:   lifecycle.NewController(c.store, c.catalog, logger),
		catalog:     c.catalog,
		metrics:     c.metrics,

		providers:     c.providers,
		evaluation:    c.evaluator != nil,
		eventsEnabled: c.eventsEnabled,
		closers:       c.closers,
	}
	s.lifecycle.SetMetrics(c.metrics)
	s.lifecycle.SetEvents(c.events)

	if n := cfg.Daemon.SubmissionsPerMinute; n > 0 {
		s.limiter = newRateLimiter(n, n)
		ctx, cancel := context.WithCancel(context.Background())
		go s.limiter.run(ctx, 5*time.Minute)
		s.closers = append(s.closers, func() error { cancel(); return nil })
	}

	s.setupRoutes()

	handler := correlationIDMiddleware(
		recoveryMiddleware(logger,
			loggingMiddleware(logger,
				metricsMiddleware(s.metrics, s.router))))
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // judge calls run inside the request
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.Handle("GET /metrics", s.metrics.Handler())

	// Submissions
	var submit http.Handler = http.HandlerFunc(s.handleSubmit)
	if s.limiter != nil {
		submit = rateLimitMiddleware(s.limiter, s.logger, submit)
	}
	s.router.Handle("POST /v1/submissions", submit)

	// Players
	s.router.HandleFunc("GET /v1/players/{player}/stats", s.handleStats)
	s.router.HandleFunc("GET /v1/players/{player}/stats/verify", s.handleVerifyStats)
	s.router.HandleFunc("GET /v1/players/{player}/attempts", s.handleListAttempts)
	s.router.HandleFunc("GET /v1/players/{player}/progress", s.handleProgress)
	s.router.HandleFunc("POST /v1/players/{player}/levels/{level}/start", s.handleStartLevel)
	s.router.HandleFunc("POST /v1/players/{player}/levels/{level}/complete", s.handleCompleteLevel)

	// Content
	s.router.HandleFunc("GET /v1/levels", s.handleListLevels)
	s.router.HandleFunc("GET /v1/levels/{level}/tasks", s.handleListLevelTasks)
}

// Handler returns the HTTP handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Ledger returns the submission service
func (s *Server) Ledger() *ledger.Service { return s.ledger }

// Progression returns the stats service
func (s *Server) Progression() *progression.Service { return s.progression }

// Lifecycle returns the level controller
func (s *Server) Lifecycle() *lifecycle.Controller { return s.lifecycle }

// Close releases storage and connections without serving HTTP
func (s *Server) Close() {
	s.close()
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting radquest daemon",
		"addr", s.server.Addr,
		"llm_providers", s.providers,
		"evaluation", s.evaluation,
	)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// storage and queue connections
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	// Reverse order of opening
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("failed to close resource", "error", err)
		}
	}
	s.closers = nil
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// serviceError maps a service error onto an HTTP status
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.jsonError(w, status, message, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidSubmission):
		return http.StatusBadRequest, "invalid submission"
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound, "task not found"
	case errors.Is(err, domain.ErrLevelNotFound):
		return http.StatusNotFound, "level not found"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "persistence failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
