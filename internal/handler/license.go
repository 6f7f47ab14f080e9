package handler

import (
	"license-server/internal/model"
	"license-server/internal/service"
	"license-server/internal/store"

	"github.com/gofiber/fiber/v2"
)

// Handler serves the license lifecycle over HTTP.
type Handler struct {
	licenses  *service.Manager
	reports   store.Reporter
	events    EventSource
	publicKey []byte
}

type Option func(*Handler)

// WithReports enables the operator list and statistics routes.
func WithReports(r store.Reporter) Option {
	return func(h *Handler) {
		h.reports = r
	}
}

// WithEvents enables the per-license event route.
func WithEvents(e EventSource) Option {
	return func(h *Handler) {
		h.events = e
	}
}

func New(licenses *service.Manager, publicKeyPEM []byte, opts ...Option) *Handler {
	h := &Handler{licenses: licenses, publicKey: publicKeyPEM}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) HandleIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":      true,
		"service": "license-server",
	})
}

func (h *Handler) HandleActivate(c *fiber.Ctx) error {
	input := new(model.ActivateRequest)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.licenses.Activate(c.UserContext(), service.ActivateInput{
		LicenseKey:   input.LicenseKey,
		HWID:         input.HWID,
		User:         input.User,
		DurationDays: input.DurationDays.Int(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) HandleRevoke(c *fiber.Ctx) error {
	input := new(model.RevokeRequest)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.licenses.Revoke(c.UserContext(), input.JTI)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	res, err := h.licenses.Status(c.UserContext(), c.Params("jti"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) HandleHeartbeat(c *fiber.Ctx) error {
	input := new(model.HeartbeatRequest)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.licenses.Heartbeat(c.UserContext(), input.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// HandlePublicKey lets clients verify tokens offline.
func (h *Handler) HandlePublicKey(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "application/x-pem-file")
	return c.Send(h.publicKey)
}

func (h *Handler) HandleListLicenses(c *fiber.Ctx) error {
	page, pageSize := pagination(c)

	licenses, total, err := h.reports.List(c.UserContext(), page, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"licenses": licenses,
		"total":    total,
		"page":     page,
	})
}
