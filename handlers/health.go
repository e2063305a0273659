package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/scriptgrade/scriptgrade/services/llm"
	"github.com/scriptgrade/scriptgrade/utils/cache"
	"github.com/scriptgrade/scriptgrade/utils/response"
)

// HealthHandler reports dependency health for load balancers and ops
type HealthHandler struct {
	db    *gorm.DB
	cache *cache.RedisCache
	llm   *llm.Client
}

// NewHealthHandler creates a health handler
func NewHealthHandler(db *gorm.DB, redisCache *cache.RedisCache, llmClient *llm.Client) *HealthHandler {
	return &HealthHandler{db: db, cache: redisCache, llm: llmClient}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	status := fiber.Map{
		"status":   "ok",
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unreachable"
		healthy = false
	}

	if h.cache != nil {
		if _, err := h.cache.Exists(ctx, "health:probe"); err != nil {
			status["redis"] = "unreachable"
			healthy = false
		}
	}

	if !healthy {
		status["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}

	return response.Success(c, status)
}

// CheckLLM handles GET /health/llm, kept separate because it costs a real
// inference round trip.
func (h *HealthHandler) CheckLLM(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	if err := h.llm.HealthCheck(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"llm":    err.Error(),
		})
	}

	return response.Success(c, fiber.Map{"status": "ok", "llm": "ok"})
}
