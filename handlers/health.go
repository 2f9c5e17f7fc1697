package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Pinger checks that the database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code, database := "healthy", http.StatusOK, "ok"
	if err := h.db.Ping(ctx); err != nil {
		status, code, database = "degraded", http.StatusServiceUnavailable, err.Error()
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   "cadence",
		"version":   Version,
		"database":  database,
		"timestamp": time.Now().Unix(),
	})
}
