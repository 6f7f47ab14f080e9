package handler

import "github.com/gofiber/fiber/v2"

// Register mounts the public and operator routes. operator guards revoke and
// the reporting routes.
func (h *Handler) Register(r fiber.Router, operator fiber.Handler) {
	r.Get("/", h.HandleIndex)
	r.Post("/activate", h.HandleActivate)
	r.Post("/heartbeat", h.HandleHeartbeat)
	r.Get("/status/:jti", h.HandleStatus)
	r.Get("/public-key", h.HandlePublicKey)

	r.Post("/revoke", operator, h.HandleRevoke)
	if h.reports != nil {
		r.Get("/licenses", operator, h.HandleListLicenses)
		r.Get("/statistics", operator, h.HandleStatistics)
	}
	if h.events != nil {
		r.Get("/events", operator, h.HandleEvents)
		r.Get("/licenses/:jti/events", operator, h.HandleLicenseEvents)
	}
}
