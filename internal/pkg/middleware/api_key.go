package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/obafemi/settlecore/internal/pkg/env"
)

// AdminAPIKeyMiddleware guards administrative endpoints with a static API key
// from the environment. The comparison is constant-time.
func AdminAPIKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := env.GetEnv("ADMIN_API_KEY", "")
		if expected == "" {
			log.Error("[Middleware] ADMIN_API_KEY is not configured, rejecting admin request")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "service_unavailable",
				"message": "Admin API is not configured",
			})
		}

		provided := extractAPIKeyFromHeader(c)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing or invalid API key",
			})
		}
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.Get("X-API-Key"))
}
