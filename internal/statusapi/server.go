// Package statusapi serves a small read-only HTTP API for health checks and
// scheduler state.
package statusapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bakkerme/persona-bot/internal/scheduler"
)

type StatusProvider interface {
	Status() scheduler.Status
}

type Server struct {
	echo    *echo.Echo
	status  StatusProvider
	persona string
	started time.Time
	logger  *slog.Logger
}

func NewServer(status StatusProvider, personaName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("status api request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	s := &Server{
		echo:    e,
		status:  status,
		persona: personaName,
		started: time.Now(),
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
}

func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.logger.Info("status api listening", slog.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Persona string `json:"persona"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "healthy",
		Service: "persona-bot",
		Persona: s.persona,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	if s.status == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scheduler not running")
	}
	return c.JSON(http.StatusOK, s.status.Status())
}
