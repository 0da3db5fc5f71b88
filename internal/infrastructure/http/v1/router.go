// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"seqnum/internal/infrastructure/http/v1/handlers"
	"seqnum/internal/infrastructure/http/v1/middleware"
	"seqnum/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation; nil disables bearer tokens
	JWTValidator middleware.JWTValidator

	// AuthRequired rejects requests without a valid bearer token
	AuthRequired bool

	// ManageRoles, when set, restricts create/set-next/reset to callers
	// holding one of the roles
	ManageRoles []string

	// Sequences serves the sequence endpoints
	Sequences handlers.SequenceService

	// DB is pinged by the readiness check; nil for memory storage
	DB handlers.Pinger

	// StorageDriver is reported by the readiness check
	StorageDriver string

	// MetricsHandler is mounted on /metrics when set
	MetricsHandler http.Handler

	// LogLevel serves GET/PUT /api/v1/log/level for the manage roles
	LogLevel http.Handler
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.StorageDriver)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	v1 := router.Group("/api/v1")
	if cfg.AuthRequired && cfg.JWTValidator != nil {
		v1.Use(middleware.Auth(cfg.JWTValidator))
	} else {
		v1.Use(middleware.OptionalAuth(cfg.JWTValidator))
	}

	registerSequenceRoutes(v1, cfg)

	if cfg.LogLevel != nil {
		admin := v1.Group("/log")
		if len(cfg.ManageRoles) > 0 {
			admin.Use(middleware.RequireRole(cfg.ManageRoles...))
		}
		admin.GET("/level", gin.WrapH(cfg.LogLevel))
		admin.PUT("/level", gin.WrapH(cfg.LogLevel))
	}

	return router
}

// registerSequenceRoutes registers sequence endpoints.
func registerSequenceRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Sequences == nil {
		return
	}

	sequences := rg.Group("/sequences")
	manage := rg.Group("/sequences")
	if len(cfg.ManageRoles) > 0 {
		manage.Use(middleware.RequireRole(cfg.ManageRoles...))
	}

	handler := handlers.NewSequenceHandler(handlers.NewBaseHandler(), cfg.Sequences)
	handler.RegisterRoutes(sequences, manage)
}
