package handler

import (
	"context"
	"strconv"

	"license-server/internal/model"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// EventSource pages through lifecycle events, newest first.
type EventSource interface {
	GetEvents(ctx context.Context, page, pageSize int) ([]model.LicenseEvent, int64, error)
	GetLicenseEvents(ctx context.Context, licenseID string, page, pageSize int) ([]model.LicenseEvent, int64, error)
}

func (h *Handler) HandleEvents(c *fiber.Ctx) error {
	page, pageSize := pagination(c)

	events, total, err := h.events.GetEvents(c.UserContext(), page, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"events": events,
		"total":  total,
		"page":   page,
	})
}

func (h *Handler) HandleLicenseEvents(c *fiber.Ctx) error {
	id := c.Params("jti")
	if id == "" {
		return badRequest(c, "jti required")
	}
	page, pageSize := pagination(c)

	events, total, err := h.events.GetLicenseEvents(c.UserContext(), id, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"events": events,
		"total":  total,
		"page":   page,
	})
}

func pagination(c *fiber.Ctx) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	pageSize, _ = strconv.Atoi(c.Query("page_size", strconv.Itoa(defaultPageSize)))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
