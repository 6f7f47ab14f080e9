package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const OperatorKeyHeader = "X-Operator-Key"

// Operator guards operator routes with a shared key whose bcrypt hash is
// configured. An empty hash leaves the routes open.
func Operator(keyHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if keyHash == "" {
			return c.Next()
		}

		key := operatorKey(c)
		if key == "" {
			return deny(c, "operator key required")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			return deny(c, "invalid operator key")
		}
		return c.Next()
	}
}

func operatorKey(c *fiber.Ctx) string {
	if key := c.Get(OperatorKeyHeader); key != "" {
		return key
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func deny(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": msg,
		"kind":  "Unauthorized",
	})
}
