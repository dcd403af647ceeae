package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	mw "github.com/tphakala/datamover/internal/api/middleware"
	"github.com/tphakala/datamover/internal/app"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/logger"
	"github.com/tphakala/datamover/internal/observability"
)

// Runner starts pipeline runs. *app.Runner implements it.
type Runner interface {
	RunArchive(ctx context.Context, opts app.ArchiveOptions) (etl.Report, error)
	RunMigrate(ctx context.Context) (etl.Report, error)
	Running(pipeline string) bool
}

// Server is the HTTP trigger server.
type Server struct {
	echo    *echo.Echo
	config  *Config
	runner  Runner
	metrics *observability.Metrics
	reports *cache.Cache
	log     logger.Logger

	// Lifecycle management; runs started over HTTP use ctx so shutdown
	// cancels them.
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics exposes /metrics and records request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger replaces the package logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates the server and registers its routes.
func New(config *Config, runner Runner, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if runner == nil {
		return nil, fmt.Errorf("server requires a runner")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		runner: runner,
		// no janitor: expired entries are skipped by Get and overwritten by the next run
		reports:   cache.New(config.ReportTTL, 0),
		log:       GetLogger(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.Bool("function_key", config.FunctionKey != ""))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/healthz" || c.Path() == "/metrics"
	}))
	if s.metrics != nil {
		s.echo.Use(mw.NewRequestMetrics(s.metrics.HTTP.RecordHTTPRequest))
	}
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	g := s.echo.Group("/api")
	if s.config.FunctionKey != "" {
		var onReject func(echo.Context)
		if s.metrics != nil {
			onReject = func(c echo.Context) { s.metrics.HTTP.RecordAuthFailure(c.Path()) }
		}
		g.Use(mw.NewFunctionKeyAuth(s.config.FunctionKey, onReject))
	}
	g.POST("/archive", s.handleArchive)
	g.POST("/migrate-products", s.handleMigrate)
	g.GET("/runs/:pipeline/last", s.handleLastRun)
}

// RecordReport caches report as the last run of its pipeline. Subscribe it
// to the runner's reporter so scheduled runs are cached too.
func (s *Server) RecordReport(report etl.Report) {
	s.reports.SetDefault(report.Pipeline, report)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.startBlocking()
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) startBlocking() error {
	s.log.Info("Starting HTTP server", logger.String("address", s.config.Listen))
	if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown cancels in-flight runs and stops the server.
func (s *Server) Shutdown() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("Server shutdown complete")
	return nil
}
