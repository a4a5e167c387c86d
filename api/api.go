// Package api exposes the monitor's operational status over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/price-sentinel/health"
	"github.com/aluiziolira/price-sentinel/models"
	"github.com/aluiziolira/price-sentinel/store"
)

// Server serves the read-only status endpoints.
type Server struct {
	engine  *gin.Engine
	monitor *health.Monitor
	store   store.Store
	logger  *slog.Logger
}

// NewServer wires the routes. The server never mutates monitor state.
func NewServer(monitor *health.Monitor, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, monitor: monitor, store: st, logger: logger}
	engine.GET("/healthz", s.healthz)
	engine.GET("/stats", s.stats)
	return s
}

// Handler returns the HTTP handler for mounting on a listener.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// healthz is pure liveness: the process is up and serving.
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statsResponse struct {
	Sources         map[models.Source]models.HealthState `json:"sources"`
	ProductsTracked int64                                `json:"products_tracked"`
	GeneratedAt     time.Time                            `json:"generated_at"`
}

// stats reports every source's health counters plus the tracked-item count.
func (s *Server) stats(c *gin.Context) {
	ctx := c.Request.Context()

	snapshot, err := s.monitor.Snapshot(ctx)
	if err != nil {
		s.logger.Error("health snapshot failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "health state unavailable"})
		return
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Error("product count failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "baseline store unavailable"})
		return
	}

	c.JSON(http.StatusOK, statsResponse{
		Sources:         snapshot,
		ProductsTracked: count,
		GeneratedAt:     time.Now().UTC(),
	})
}
