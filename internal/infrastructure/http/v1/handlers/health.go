package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkcore/internal/core/tx"
	"parkcore/internal/infrastructure/storage/postgres"
)

// HealthHandler provides health check and monitoring endpoints.
type HealthHandler struct {
	pool *postgres.Pool
	txm  tx.Manager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool *postgres.Pool, txm tx.Manager) *HealthHandler {
	return &HealthHandler{pool: pool, txm: txm}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.pool.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{
				"database": "unhealthy: " + err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
	})
}

// Info returns application information and transaction statistics.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	stat := h.pool.Stat()
	txStats := h.txm.Stats()

	c.JSON(http.StatusOK, gin.H{
		"app":     "parkcore",
		"version": "0.1.0",
		"database": map[string]any{
			"total_conns":    stat.TotalConns(),
			"acquired_conns": stat.AcquiredConns(),
			"idle_conns":     stat.IdleConns(),
			"max_conns":      stat.MaxConns(),
		},
		"transactions": map[string]any{
			"total_executed":  txStats.TotalExecuted,
			"active":          txStats.Active,
			"succeeded":       txStats.Succeeded,
			"failed":          txStats.Failed,
			"timed_out":       txStats.TimedOut,
			"avg_duration_ms": txStats.AvgDuration.Milliseconds(),
		},
	})
}
