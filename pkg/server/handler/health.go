package handler

import (
	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/gofiber/fiber/v2"
)

// GetHealth reports liveness. A shut down engine answers 503.
func GetHealth(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		h := eng.HealthCheck()
		if !h.Healthy {
			ctx.Status(fiber.StatusServiceUnavailable)
		}
		return ctx.JSON(h)
	}
}

func GetStatus(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(eng.GlobalStatus())
	}
}

func GetMetrics(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(eng.Metrics())
	}
}

func ResetMetrics(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		eng.ResetMetrics()
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

// PostCleanup removes finished matches older than the maxAgeMs query parameter. Without it every
// finished match is removed.
func PostCleanup(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		maxAge := ctx.QueryInt("maxAgeMs", 0)
		if maxAge < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "maxAgeMs cannot be negative")
		}
		return ctx.JSON(eng.Cleanup(millis(maxAge)))
	}
}
