package idgen

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Handler serves GET /new-id for the id-service.
func Handler(src Source) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := src.NextID(c.UserContext())
		if err != nil {
			slog.Error("failed to generate id", "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate ID"})
		}
		return c.JSON(fiber.Map{"id": id})
	}
}
