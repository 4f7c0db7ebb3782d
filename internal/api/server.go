package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/valscreen/internal/api/job"
	"github.com/newthinker/valscreen/internal/api/middleware"
	"github.com/newthinker/valscreen/internal/batch"
	"github.com/newthinker/valscreen/internal/core"
	"github.com/newthinker/valscreen/internal/index"
	"github.com/newthinker/valscreen/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Screener is the application surface the API drives.
type Screener interface {
	Indices() []index.Descriptor
	Index(key string) (index.Descriptor, bool)
	DefaultLimit() uint
	ResolveAndRank(ctx context.Context, indexKey string, limit uint) (core.Selection, error)
	RunBatch(ctx context.Context, sel core.Selection, progress batch.ProgressFunc) *core.ResultTable
	Archive(ctx context.Context, t *core.ResultTable) (string, error)
	LatestSnapshot(ctx context.Context, indexKey string) (*core.ResultTable, error)
}

// Server represents the HTTP server for the screener.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	screener   Screener
	metrics    *metrics.Registry
	jobs       *job.Store

	// scans run on this context so Shutdown can stop them
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	JobTTL      time.Duration
	MaxJobs     int
	MetricsPath string // empty disables /metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, screener Screener, reg *metrics.Registry, logger *zap.Logger) (*Server, error) {
	if screener == nil {
		return nil, fmt.Errorf("api: screener is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	mux := http.NewServeMux()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		logger:     logger,
		mux:        mux,
		screener:   screener,
		metrics:    reg,
		jobs:       job.NewStore(cfg.MaxJobs, cfg.JobTTL),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	s.setupRoutes(cfg.MetricsPath)

	exempt := []string{"/api/health"}
	if cfg.MetricsPath != "" {
		exempt = append(exempt, cfg.MetricsPath)
	}

	var handler http.Handler = mux
	handler = middleware.APIKeyAuth(cfg.APIKey, exempt...)(handler)
	handler = metrics.HTTPMiddleware(reg)(handler)
	handler = metrics.LoggingMiddleware(logger)(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(metricsPath string) {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/v1/indices", s.handleIndices)
	s.mux.HandleFunc("GET /api/v1/indices/{key}/snapshot", s.handleSnapshot)

	s.mux.HandleFunc("POST /api/v1/scans", s.handleCreateScan)
	s.mux.HandleFunc("GET /api/v1/scans", s.handleListScans)
	s.mux.HandleFunc("GET /api/v1/scans/{id}", s.handleGetScan)
	s.mux.HandleFunc("DELETE /api/v1/scans/{id}", s.handleCancelScan)
	s.mux.HandleFunc("GET /api/v1/scans/{id}/treemap", s.handleTreemap)

	if metricsPath != "" {
		s.mux.Handle("GET "+metricsPath, promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops running scans and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.baseCancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
