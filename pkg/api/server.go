// Package api exposes the HTTP surface: alert submission, session
// lifecycle control, the read side (sessions, timeline), system status,
// and the WebSocket event stream.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/database"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
	"github.com/tarsy-dev/tarsy/pkg/mcp"
	"github.com/tarsy-dev/tarsy/pkg/queue"
	"github.com/tarsy-dev/tarsy/pkg/services"
)

// PoolHealthReporter reports worker pool health for /health.
// Implemented by *queue.WorkerPool.
type PoolHealthReporter interface {
	Health() *queue.PoolHealth
}

// Options carries the server's collaborators. Every field except Store
// and AlertService may be nil; the corresponding endpoints degrade
// gracefully (empty warnings, no worker_pool check, 503 on /ws).
type Options struct {
	DBClient       *database.Client
	Store          *history.Store
	AlertService   *services.AlertService
	WarningService *services.SystemWarningsService
	ConnManager    *events.ConnectionManager
	WorkerPool     PoolHealthReporter
	HealthMonitor  *mcp.HealthMonitor
}

// Server is the HTTP API server.
type Server struct {
	cfg            *config.Config
	dbClient       *database.Client
	store          *history.Store
	alertService   *services.AlertService
	warningService *services.SystemWarningsService
	connManager    *events.ConnectionManager
	workerPool     PoolHealthReporter
	healthMonitor  *mcp.HealthMonitor

	engine *gin.Engine
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg *config.Config, opts Options) *Server {
	s := &Server{
		cfg:            cfg,
		dbClient:       opts.DBClient,
		store:          opts.Store,
		alertService:   opts.AlertService,
		warningService: opts.WarningService,
		connManager:    opts.ConnManager,
		workerPool:     opts.WorkerPool,
		healthMonitor:  opts.HealthMonitor,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), securityHeaders())

	engine.GET("/health", s.healthHandler)
	engine.GET("/ws", s.wsHandler)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/alerts", s.submitAlertHandler)
		v1.GET("/alert-types", s.alertTypesHandler)
		v1.GET("/session-id/:alert_id", s.sessionIDHandler)

		v1.GET("/sessions", s.listSessionsHandler)
		v1.GET("/sessions/:id", s.getSessionHandler)
		v1.GET("/sessions/:id/timeline", s.getTimelineHandler)
		v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)
		v1.POST("/sessions/:id/pause", s.pauseSessionHandler)
		v1.POST("/sessions/:id/resume", s.resumeSessionHandler)

		v1.GET("/system/warnings", s.systemWarningsHandler)
		v1.GET("/system/mcp-servers", s.mcpServersHandler)
	}

	s.engine = engine
	return s
}

// Handler returns the http.Handler for the server, for mounting into an
// http.Server in main.
func (s *Server) Handler() *gin.Engine {
	return s.engine
}
