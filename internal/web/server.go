package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"pitscout/internal/analyzer"
	"pitscout/internal/backtest"
	"pitscout/internal/metrics"
	"pitscout/internal/provider"
)

// Options configures the HTTP API
type Options struct {
	DefaultDays int // bars fetched by /api/detect when days is not given
	AccessLog   bool
	JWTSecret   string // when set, /api requires an HS256 bearer token
}

// Server serves detection and backtest results over HTTP
type Server struct {
	provider   provider.Provider
	detector   *analyzer.Detector
	backtester *backtest.Backtester
	metrics    *metrics.Recorder
	logger     zerolog.Logger
	opts       Options
	echo       *echo.Echo
}

// NewServer creates a new web server. rec may be nil, then /metrics is not mounted.
func NewServer(p provider.Provider, d *analyzer.Detector, bt *backtest.Backtester, rec *metrics.Recorder, logger zerolog.Logger, opts Options) *Server {
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = 180
	}
	s := &Server{
		provider:   p,
		detector:   d,
		backtester: bt,
		metrics:    rec,
		logger:     logger.With().Str("component", "web").Logger(),
		opts:       opts,
	}
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if s.opts.AccessLog {
		e.Use(requestLogger(s.logger))
	}

	e.GET("/healthz", s.handleHealth)

	g := e.Group("/api")
	if s.opts.JWTSecret != "" {
		g.Use(bearerAuth(s.opts.JWTSecret))
	}
	g.GET("/detect/:code", s.handleDetect)
	g.GET("/backtest/:code", s.handleBacktest)

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	return e
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.echo.Server.ReadTimeout = 30 * time.Second
	s.echo.Server.WriteTimeout = 120 * time.Second
	s.echo.Server.IdleTimeout = 120 * time.Second

	s.logger.Info().Str("addr", addr).Msg("http api listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLogger logs one line per request
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info().
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}
