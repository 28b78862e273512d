package rest

import (
	"github.com/AzielCF/az-hub/pkg/eventworker"
	"github.com/gofiber/fiber/v2"
)

// GetWorkerPoolStats returns real-time event worker pool statistics
func GetWorkerPoolStats(c *fiber.Ctx) error {
	stats := eventworker.GetGlobalStats()
	return c.JSON(stats)
}
