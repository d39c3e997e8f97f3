package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenAuth guards admin routes with a shared token. The token is read
// from "Authorization: Bearer <token>", then X-Admin-Token.
func AdminTokenAuth(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		got := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if got == "" {
			got = c.Get("X-Admin-Token")
		}

		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or missing admin token",
				"hint":  "Provide an Authorization: Bearer header or X-Admin-Token",
			})
		}

		return c.Next()
	}
}
