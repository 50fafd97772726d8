package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware requires "Authorization: Bearer <token>" matching the bot
// token, so only the chat transport adapter can drive conversations.
// An empty token disables the check. Health and swagger stay public.
func AuthMiddleware(token string) fiber.Handler {
	publicPrefixes := []string{"/api/v1/health", "/swagger"}
	expected := []byte(token)

	return func(c fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		path := c.Path()
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing Authorization header",
			})
		}

		presented, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid Authorization header format, expected 'Bearer <token>'",
			})
		}

		if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid bearer token",
			})
		}

		return c.Next()
	}
}
