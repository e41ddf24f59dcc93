// Package http provides the HTTP API for botd.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/knowledge"
	"github.com/fyrsmithlabs/botd/internal/models"
	"github.com/fyrsmithlabs/botd/internal/prompt"
	"github.com/fyrsmithlabs/botd/internal/settings"
	"github.com/fyrsmithlabs/botd/internal/tenant"
	"github.com/fyrsmithlabs/botd/internal/vectorstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Knowledge is the ingestion surface the server needs.
type Knowledge interface {
	Ingest(ctx context.Context, bot *tenant.Bot, chunks []knowledge.Chunk) error
	Purge(ctx context.Context, botID string) error
}

// Streamer produces a finite token stream for one question.
type Streamer interface {
	Stream(ctx context.Context, bot *tenant.Bot, question string, history []prompt.Message) (<-chan string, error)
}

// ModelManager manages local chat models.
type ModelManager interface {
	ListLocal(ctx context.Context) ([]models.Info, error)
	Pull(ctx context.Context, name string) error
	VerifyHuggingFace(ctx context.Context, modelID string) error
}

// HealthChecker reports vector store connectivity.
type HealthChecker interface {
	Health(ctx context.Context) vectorstore.HealthStatus
}

// Deps collects the services the server fronts.
type Deps struct {
	Settings  settings.Store
	Bots      tenant.Store
	Knowledge Knowledge
	Chat      Streamer
	Models    ModelManager
	Vectors   HealthChecker
}

// Server provides HTTP endpoints for botd.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  *zap.Logger
	config  Config
	metrics *Metrics
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger.Named("http"),
		config:  cfg,
		metrics: NewMetrics(),
	}
	e.Use(s.metrics.Middleware())

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/api/health", s.handleHealth)
	s.echo.GET("/metrics", s.metrics.Handler())

	admin := s.echo.Group("/api/admin")
	admin.GET("/config", s.handleGetConfig)
	admin.PUT("/config", s.handleUpdateConfig)
	admin.GET("/models", s.handleListModels)
	admin.POST("/models/pull", s.handlePullModel)
	admin.POST("/models/verify/huggingface", s.handleVerifyHFModel)
	admin.GET("/bots", s.handleListBots)
	admin.POST("/bots", s.handleCreateBot)
	admin.DELETE("/bots/:id", s.handleDeleteBot)
	admin.POST("/bots/:id/ingest", s.handleIngest)

	s.echo.POST("/api/bots/:id/chat", s.handleChat)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
