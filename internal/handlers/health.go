package handlers

import (
	"time"

	"registerkaro/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports service liveness
type HealthHandler struct {
	connManager *services.ConnectionManager
	store       *services.SessionStore
	startedAt   time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connManager *services.ConnectionManager, store *services.SessionStore) *HealthHandler {
	return &HealthHandler{
		connManager: connManager,
		store:       store,
		startedAt:   time.Now(),
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":             "ok",
		"active_connections": h.connManager.Count(),
		"active_sessions":    h.store.Count(),
		"uptime_seconds":     int(time.Since(h.startedAt).Seconds()),
	})
}
