package apiserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brokle-tracehub/internal/config"
	"brokle-tracehub/internal/engine"
	"brokle-tracehub/internal/realtime"
)

// Server is the query/subscribe HTTP front-end wrapping a single
// facade: a held gin.Engine plus a stdlib http.Server around it.
type Server struct {
	cfg    *config.APIConfig
	logger *slog.Logger
	facade *engine.Facade
	bus    *realtime.Bus

	engine *gin.Engine
	server *http.Server
}

func NewServer(cfg *config.APIConfig, facade *engine.Facade, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var bus *realtime.Bus
	if cfg.RedisAddr != "" {
		bus = realtime.NewBus(cfg.RedisAddr, cfg.RedisChannelPrefix, logger)
	}
	return &Server{cfg: cfg, facade: facade, logger: logger, bus: bus}
}

// Start builds the router and serves until Shutdown is called.
// Blocking; run it in its own goroutine.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(requestID(), accessLog(s.logger), recovery(s.logger), metrics())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("apiserver: listening", "addr", s.cfg.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("apiserver: serve: %w", err)
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.GET("/spans", s.handleQuerySpans)
	v1.GET("/events", s.handleQueryEvents)
	v1.GET("/spans/count", s.handleCountSpans)
	v1.GET("/events/count", s.handleCountEvents)
	v1.GET("/stats", s.handleStats)
	v1.GET("/status", s.handleStatus)
	v1.GET("/subscribe", s.handleSubscribe)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Shutdown gracefully stops the HTTP server and, if configured, the
// redis mirror.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
