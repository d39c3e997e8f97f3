package handlers

import (
	"context"
	"os/exec"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/metrics"
)

// Pinger reports whether a backing service answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// GateStats exposes the Instagram concurrency gate
type GateStats interface {
	InFlight() int64
	Waiting() int64
	Capacity() int64
}

// PoolStats exposes the resolution worker pool
type PoolStats interface {
	ActiveJobs() int64
}

type redisPinger struct {
	client redis.UniversalClient
}

// NewRedisPinger adapts a go-redis client to Pinger
func NewRedisPinger(client redis.UniversalClient) Pinger {
	return redisPinger{client: client}
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// HealthOptions are the optional probes of a HealthHandler
type HealthOptions struct {
	Redis     Pinger // nil when cooldowns live in memory
	Gate      GateStats
	Pool      PoolStats
	YtdlpPath string
	Version   string
}

// HealthHandler provides health check endpoints
type HealthHandler struct {
	opts     HealthOptions
	metrics  *metrics.Metrics
	lookPath func(file string) (string, error)
	logger   *zap.Logger
}

// NewHealthHandler creates a health handler
func NewHealthHandler(m *metrics.Metrics, opts HealthOptions, logger *zap.Logger) *HealthHandler {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &HealthHandler{
		opts:     opts,
		metrics:  m,
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// BasicHealth returns simple healthy status (for load balancers)
func (h *HealthHandler) BasicHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// DetailedHealth returns the status of every dependency the bot needs
func (h *HealthHandler) DetailedHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	if h.opts.Redis != nil {
		status := "healthy"
		if err := h.opts.Redis.Ping(ctx); err != nil {
			status = "unhealthy"
			healthy = false
			h.logger.Warn("Redis health check failed", zap.Error(err))
		}
		checks["redis"] = fiber.Map{"status": status}
	}

	ytdlp := fiber.Map{"status": "healthy"}
	if path, err := h.lookPath(h.opts.YtdlpPath); err != nil {
		ytdlp["status"] = "unhealthy"
		ytdlp["error"] = err.Error()
		healthy = false
		h.logger.Warn("yt-dlp not found", zap.String("path", h.opts.YtdlpPath), zap.Error(err))
	} else {
		ytdlp["path"] = path
	}
	checks["ytdlp"] = ytdlp

	status, code := "healthy", fiber.StatusOK
	if !healthy {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.opts.Version,
		"checks":    checks,
	})
}

// Readiness returns whether the bot can serve requests
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if h.opts.Redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.opts.Redis.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"ready":   false,
				"message": "Redis not available",
			})
		}
	}

	return c.JSON(fiber.Map{
		"ready": true,
	})
}

// Liveness returns whether service is alive (for k8s liveness probe)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"alive": true,
	})
}

// Metrics returns the counters together with live gate and pool load
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	snapshot := h.metrics.GetSnapshot()
	if g := h.opts.Gate; g != nil {
		snapshot["instagram_gate"] = fiber.Map{
			"in_flight": g.InFlight(),
			"waiting":   g.Waiting(),
			"capacity":  g.Capacity(),
		}
	}
	if p := h.opts.Pool; p != nil {
		snapshot["active_jobs"] = p.ActiveJobs()
	}
	return c.JSON(snapshot)
}
