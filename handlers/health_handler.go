package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	cache Pinger
	log   *zap.Logger
}

// NewHealthHandler takes a nil cache when redis is not configured.
func NewHealthHandler(db, cache Pinger, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, log: log}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	healthy := true
	body := fiber.Map{"database": "ok", "cache": "disabled"}

	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn("health: database ping failed", zap.Error(err))
		body["database"] = "unavailable"
		healthy = false
	}
	if h.cache != nil {
		body["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.log.Warn("health: cache ping failed", zap.Error(err))
			body["cache"] = "unavailable"
			healthy = false
		}
	}

	if !healthy {
		body["status"] = "unavailable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	body["status"] = "ok"
	return c.JSON(body)
}
