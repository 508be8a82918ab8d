// Package api exposes the HTTP surface of the matching server: emergency
// intake, match queries, donor responses and the live match stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/domain"
	"github.com/emergency-match-server/internal/middleware"
	"github.com/emergency-match-server/internal/service"
)

// SummaryCache is the optional read cache for match summaries. Lite
// deployments run without one.
type SummaryCache interface {
	GetSummary(ctx context.Context, requestID string) (*domain.MatchSummary, bool, error)
	SetSummary(ctx context.Context, summary *domain.MatchSummary) error
}

// Server represents the HTTP server
type Server struct {
	log          *logrus.Logger
	orchestrator *service.MatchOrchestrator
	store        domain.MatchStore
	cache        SummaryCache
	cfg          domain.ServerConfig
	router       *gin.Engine
	server       *http.Server
}

// NewServer creates a new HTTP server instance. cache may be nil.
func NewServer(
	logger *logrus.Logger,
	orchestrator *service.MatchOrchestrator,
	store domain.MatchStore,
	cache SummaryCache,
	cfg domain.ServerConfig,
	debug bool,
) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))

	server := &Server{
		log:          logger,
		orchestrator: orchestrator,
		store:        store,
		cache:        cache,
		cfg:          cfg,
		router:       router,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/emergency", s.handleEmergency)
		v1.GET("/requests/:id/matches", s.handleGetMatches)
		v1.GET("/requests/:id/summary", s.handleGetSummary)
		v1.GET("/requests/:id/stream", s.handleStream)
		v1.POST("/matches/:id/response", s.handleDonorResponse)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   "1.0.0",
	})
}
