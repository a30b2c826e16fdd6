// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"parkcore/internal/core/tx"
	"parkcore/internal/domain/auth"
	"parkcore/internal/domain/parking"
	"parkcore/internal/infrastructure/http/v1/handlers"
	"parkcore/internal/infrastructure/http/v1/middleware"
	"parkcore/internal/infrastructure/storage/postgres"
	"parkcore/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// TxManager provides transaction statistics for monitoring.
	TxManager tx.Manager

	// ParkingService orchestrates parking operations.
	ParkingService *parking.Service

	// AuthService for authentication endpoints. Nil disables auth
	// entirely (local development).
	AuthService *auth.Service

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// Logger for request logging.
	Logger *logger.Logger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace(cfg.Logger))
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.TxManager)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()
	parkingHandler := handlers.NewParkingHandler(baseHandler, cfg.ParkingService)

	v1 := router.Group("/api/v1")
	{
		if cfg.AuthService != nil {
			authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService)
			v1.POST("/auth/login", authHandler.Login)
		}

		// Reads are open; mutations require an operator token.
		v1.GET("/parking/spots", parkingHandler.ListSpots)
		v1.GET("/parking/sessions", parkingHandler.ListActiveSessions)
		v1.GET("/parking/sessions/:plate", parkingHandler.GetActiveSession)

		protected := v1.Group("")
		if cfg.AuthService != nil {
			protected.Use(middleware.Auth(cfg.JWTValidator))
		}
		{
			protected.POST("/parking/park", parkingHandler.Park)
			protected.POST("/parking/exit", parkingHandler.Exit)
			protected.POST("/parking/transfer", parkingHandler.Transfer)
			protected.POST("/parking/spots", parkingHandler.ProvisionSpots)
			protected.POST("/parking/spots/bulk-status", parkingHandler.BulkUpdateStatus)
		}
	}

	return router
}
