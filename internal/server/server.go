package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docvault/config"
	"docvault/internal/handler"
	"docvault/internal/middleware"
	"docvault/internal/transport/httpdto"
	"docvault/internal/websocket"
	"docvault/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

const shutdownTimeout = 5 * time.Second

type Handlers struct {
	Uploads   *handler.UploadHandler
	Documents *handler.DocumentHandler
	WebSocket *websocket.Handler
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger

	checks     map[string]HealthCheck
	onShutdown []func(ctx context.Context)
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	switch cfg.AppMode {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.Nop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
		checks: make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a dependency checked by GET /health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// OnShutdown registers fn to run after the HTTP server stopped accepting requests.
func (s *Server) OnShutdown(fn func(ctx context.Context)) {
	s.onShutdown = append(s.onShutdown, fn)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, connLimiter middleware.ConnectionLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/health", s.health)

	wsGuard := []gin.HandlerFunc{}
	if connLimiter != nil {
		wsGuard = append(wsGuard, middleware.ConnectionRateLimitMiddleware(connLimiter))
	}

	uploads := s.engine.Group("/v1/uploads")
	{
		uploads.POST("", handlers.Uploads.Start)
		uploads.GET("", handlers.Uploads.List)
		uploads.GET("/:key", handlers.Uploads.Get)
		uploads.POST("/:key/pause", handlers.Uploads.Pause)
		uploads.POST("/:key/resume", handlers.Uploads.Resume)
		uploads.DELETE("/:key", handlers.Uploads.Cancel)
		uploads.GET("/:key/ws", append(wsGuard, handlers.WebSocket.SessionStream)...)
	}

	documents := s.engine.Group("/v1/documents")
	{
		documents.GET("", handlers.Documents.List)
		documents.GET("/:id", handlers.Documents.GetByID)
		documents.GET("/:id/events", handlers.Documents.Events)
	}

	s.engine.GET("/v1/ws", append(wsGuard, handlers.WebSocket.Connect)...)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := gin.H{}
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewFailureResponse(status, "dependency check failed", "UNHEALTHY"))
		return
	}
	status["status"] = "healthy"
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(status))
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		s.logger.Errorf("Error in starting the server: %s", err)
		return err
	case sig := <-quit:
		s.logger.Logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
	}
	for _, fn := range s.onShutdown {
		fn(ctx)
	}
	if err == nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return err
}
