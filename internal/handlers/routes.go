// Package handlers serves the bot's admin HTTP surface: health probes,
// metrics and optional profiling.
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/KeremKalyoncu/medyan-bot/internal/middleware"
)

// AdminOptions configures the admin app
type AdminOptions struct {
	// Token protects /metrics and /debug/pprof when set
	Token       string
	EnablePprof bool
}

// NewAdminApp builds the fiber app exposing h
func NewAdminApp(h *HealthHandler, opts AdminOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "medyan-bot admin",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          6 * time.Minute, // long enough for a CPU profile
		IdleTimeout:           60 * time.Second,
	})
	app.Use(recover.New())
	app.Use(middleware.CompressionMiddleware())

	app.Get("/health", h.BasicHealth)
	app.Get("/health/detailed", h.DetailedHealth)
	app.Get("/ready", h.Readiness)
	app.Get("/live", h.Liveness)

	guard := []fiber.Handler{middleware.NewRateLimiter(60, time.Minute).Middleware()}
	if opts.Token != "" {
		guard = append(guard, middleware.AdminTokenAuth(opts.Token))
	}
	app.Get("/metrics", append(guard, h.Metrics)...)
	if opts.EnablePprof {
		RegisterPprofRoutes(app, guard...)
	}

	return app
}
