package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
)

// CompressionMiddleware compresses JSON and HTML admin responses. Profiles
// under /debug/pprof are already gzip-encoded and pass through untouched.
func CompressionMiddleware() fiber.Handler {
	return compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/debug/pprof/") && c.Path() != "/debug/pprof/"
		},
	})
}
