package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// RequireBearerToken rejects requests whose Authorization bearer token does
// not match expected. An empty expected token rejects every request.
func RequireBearerToken(expected, name string) fiber.Handler {
	return requireToken(expected, name, bearerToken)
}

// RequireAPIToken is RequireBearerToken that also accepts the token in the
// X-API-Key header.
func RequireAPIToken(expected, name string) fiber.Handler {
	return requireToken(expected, name, extractTokenFromHeader)
}

func requireToken(expected, name string, extract func(c *fiber.Ctx) string) fiber.Handler {
	if expected == "" {
		log.Warnf("[Auth] %s is not configured, all requests will be rejected", name)
	}
	return func(c *fiber.Ctx) error {
		token := extract(c)
		if token == "" {
			return unauthorized(c, "Missing token")
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return unauthorized(c, "Invalid token")
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": message})
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func extractTokenFromHeader(c *fiber.Ctx) string {
	if token := bearerToken(c); token != "" {
		return token
	}
	return strings.TrimSpace(c.Get("X-API-Key"))
}
