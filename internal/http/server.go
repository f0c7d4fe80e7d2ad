// Package http provides the HTTP API for recalld.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/query"
	"github.com/fyrsmithlabs/recalld/internal/rebuild"
	"github.com/fyrsmithlabs/recalld/internal/source"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Deps holds the collaborators the server exposes. Trigger and
// Vectors may be nil; their endpoints then return 503.
type Deps struct {
	Engine  *query.Engine
	Store   *source.Store
	Vectors *embedding.Index
	Trigger rebuild.Notifier
	State   *rebuild.State
	Secret  config.Secret
}

// Server exposes the query engine, the internal entity/vector write
// path and the internal rebuild trigger.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("source store is required")
	}
	if deps.State == nil {
		return nil, fmt.Errorf("rebuild state is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9190}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.ContextWithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			// Handlers enrich the request context (scope, trace);
			// read it back after they ran.
			fields := append([]zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			}, logging.ContextFields(c.Request().Context())...)
			logger.Info("http request", fields...)
			return err
		}
	})

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/lookup", s.handleLookup)
	v1.POST("/fuzzy", s.handleFuzzy)
	v1.POST("/search", s.handleSearch)
	v1.POST("/traverse", s.handleTraverse)

	// Process-internal, shared-secret authenticated; never exposed
	// beyond the host.
	internal := s.echo.Group("/internal", s.requireSecret)
	internal.POST("/rebuild", s.handleRebuild)
	internal.POST("/entities", s.handlePutEntity)
	internal.DELETE("/entities/:id", s.handleDeleteEntity)
	internal.POST("/vectors", s.handlePutVector)
}

// Start begins serving and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("http server starting", zap.String("addr", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
