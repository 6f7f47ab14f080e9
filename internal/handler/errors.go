package handler

import (
	"errors"
	"log/slog"

	"license-server/internal/service"

	"github.com/gofiber/fiber/v2"
)

var kindStatus = map[service.Kind]int{
	service.KindInvalidInput: fiber.StatusBadRequest,
	service.KindInvalidToken: fiber.StatusUnauthorized,
	service.KindNotFound:     fiber.StatusNotFound,
	service.KindDuplicateKey: fiber.StatusConflict,
	service.KindSigning:      fiber.StatusServiceUnavailable,
	service.KindInternal:     fiber.StatusInternalServerError,
}

func respondError(c *fiber.Ctx, err error) error {
	kind := service.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	msg := err.Error()
	if kind == service.KindInternal {
		slog.Default().ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		msg = "internal error"
	}

	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"kind":  kind,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"kind":  service.KindInvalidInput,
	})
}

// ErrorHandler renders errors that escape the handlers, such as unknown
// routes, in the same body shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		kind := service.KindInternal
		switch fe.Code {
		case fiber.StatusNotFound:
			kind = service.KindNotFound
		case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed, fiber.StatusUnprocessableEntity, fiber.StatusRequestEntityTooLarge:
			kind = service.KindInvalidInput
		}
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fe.Message,
			"kind":  kind,
		})
	}
	return respondError(c, err)
}
