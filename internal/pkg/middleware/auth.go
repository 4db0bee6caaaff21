package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/flowdeck-app/flowdeck/internal/pkg/usercontext"
)

// UserContextMiddleware establishes the caller identity for every request.
// Authentication itself happens at the gateway; this service trusts the
// X-User-ID / X-User-Email headers it forwards.
func UserContextMiddleware(c *fiber.Ctx) error {
	uc := usercontext.UserContext{}
	if id := parseUserID(c.Get("X-User-ID")); id > 0 {
		uc.UserID = id
		uc.IsLoggedIn = true
		uc.Email = strings.TrimSpace(c.Get("X-User-Email"))
	}
	c.Locals(usercontext.KeyUserContext, uc)
	return c.Next()
}

// RequireAPIAuth ensures a caller identity for API routes, answering JSON 401
// instead of a redirect.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "caller identity required",
		})
	}
	return c.Next()
}

func parseUserID(raw string) uint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
