package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HandleStatistics reports license counts by lifecycle state.
func (h *Handler) HandleStatistics(c *fiber.Ctx) error {
	stats, err := h.reports.Statistics(c.UserContext(), time.Now().Unix())
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"data":        stats,
		"active_rate": stats.ActiveRate(),
	})
}
