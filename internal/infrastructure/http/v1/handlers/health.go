// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"seqnum/internal/infrastructure/http/v1/dto"
)

// readyTimeout bounds the storage ping of the readiness check.
const readyTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness checks.
type HealthHandler struct {
	db      Pinger
	storage string
}

// NewHealthHandler creates a new health handler. A nil db (memory storage)
// is always ready.
func NewHealthHandler(db Pinger, storage string) *HealthHandler {
	return &HealthHandler{db: db, storage: storage}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: dto.HealthOK})
}

// Ready handles GET /health/ready. Sequence values cannot be issued while
// the database is unreachable, so a failed ping answers 503.
func (h *HealthHandler) Ready(c *gin.Context) {
	resp := dto.HealthResponse{
		Status: dto.HealthOK,
		Checks: map[string]string{"storage": h.storage},
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = dto.HealthError
			resp.Checks["database"] = "unhealthy: " + err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.Checks["database"] = dto.HealthOK
	}

	c.JSON(http.StatusOK, resp)
}
