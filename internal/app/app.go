// Package app wires the bot's components together.
package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/cleanup"
	"github.com/KeremKalyoncu/medyan-bot/internal/config"
	"github.com/KeremKalyoncu/medyan-bot/internal/delivery"
	"github.com/KeremKalyoncu/medyan-bot/internal/extractor"
	"github.com/KeremKalyoncu/medyan-bot/internal/fetcher"
	"github.com/KeremKalyoncu/medyan-bot/internal/handlers"
	"github.com/KeremKalyoncu/medyan-bot/internal/metrics"
	"github.com/KeremKalyoncu/medyan-bot/internal/pool"
	"github.com/KeremKalyoncu/medyan-bot/internal/ratelimit"
	"github.com/KeremKalyoncu/medyan-bot/internal/resolver"
	"github.com/KeremKalyoncu/medyan-bot/internal/session"
	"github.com/KeremKalyoncu/medyan-bot/internal/transport/telegram"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
	"github.com/KeremKalyoncu/medyan-bot/pkg/storage"
)

const instagramReferer = "https://www.instagram.com/"

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Redis        *redis.Client // nil when cooldowns are kept in memory
	Cookies      *session.Store
	Pool         *pool.WorkerPool
	Gate         *ratelimit.Gate
	Cooldown     ratelimit.Cooldown
	Workspace    *storage.LocalWorkspace
	Orchestrator *delivery.Orchestrator
	Bot          *telegram.Bot
	Cleanup      *cleanup.TempFileCleanup // nil when disabled
	Admin        *fiber.App               // nil when ADMIN_ADDR is empty

	cleanupStarted bool
}

// NewContainer creates and initializes a new application container
func NewContainer(cfg *config.Config, api telegram.API, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.GetMetrics(),
		Cookies: session.NewStore(cfg.Instagram.CookiesFile, logger),
		Pool:    pool.NewWorkerPool(cfg.Worker.Concurrency, cfg.Worker.Concurrency*4),
		Gate:    ratelimit.NewGate(cfg.Instagram.MaxConcurrent),
	}

	workspace, err := storage.NewLocalWorkspace(cfg.Download.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workspace: %w", err)
	}
	c.Workspace = workspace

	var pruner cleanup.Pruner
	if cfg.Redis.Address != "" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.Cooldown = ratelimit.NewRedisCooldown(c.Redis, cfg.Instagram.Cooldown, cfg.Redis.Prefix)
		logger.Info("Using Redis cooldown store", zap.String("redis_addr", cfg.Redis.Address))
	} else {
		memory := ratelimit.NewMemoryCooldown(cfg.Instagram.Cooldown)
		c.Cooldown = memory
		pruner = memory
	}

	resolvers, err := c.newResolvers()
	if err != nil {
		return nil, err
	}

	c.Orchestrator = delivery.New(delivery.Deps{
		Resolvers: resolvers,
		Workspace: workspace,
		Cooldown:  c.Cooldown,
		Gate:      c.Gate,
		Runner:    c.Pool,
		Metrics:   c.Metrics,
	}, delivery.Config{MaxFileBytes: cfg.Download.MaxFileBytes}, logger)

	c.Bot = telegram.New(api, c.Orchestrator, telegram.Config{
		PollTimeout:  cfg.Telegram.PollTimeout,
		MaxFileBytes: cfg.Download.MaxFileBytes,
	}, logger)

	if cfg.Cleanup.Enabled {
		c.Cleanup = cleanup.NewTempFileCleanup(workspace, pruner, cfg.Cleanup.MaxAge, cfg.Cleanup.Interval, logger)
	}

	if cfg.Admin.Addr != "" {
		opts := handlers.HealthOptions{
			Gate:      c.Gate,
			Pool:      c.Pool,
			YtdlpPath: cfg.Extractor.YtdlpPath,
		}
		if c.Redis != nil {
			opts.Redis = handlers.NewRedisPinger(c.Redis)
		}
		c.Admin = handlers.NewAdminApp(
			handlers.NewHealthHandler(c.Metrics, opts, logger),
			handlers.AdminOptions{Token: cfg.Admin.Token, EnablePprof: cfg.Admin.EnablePprof},
		)
	}

	logger.Info("Application container initialized",
		zap.String("download_dir", workspace.Base()),
		zap.Int64("max_file_bytes", cfg.Download.MaxFileBytes),
		zap.Int("worker_concurrency", cfg.Worker.Concurrency),
		zap.Int("instagram_max_concurrent", cfg.Instagram.MaxConcurrent),
		zap.Duration("instagram_cooldown", cfg.Instagram.Cooldown),
		zap.Bool("instagram_cookies", c.Cookies.Available()),
	)

	return c, nil
}

// newResolvers builds one resolver per supported platform
func (c *Container) newResolvers() (map[types.Platform]resolver.Resolver, error) {
	cfg := c.Config

	ytdlp := extractor.NewYtDlp(cfg.Extractor.YtdlpPath, cfg.Extractor.YtdlpTimeout, c.Logger)

	client, err := pool.NewHTTPClient(pool.HTTPOptions{
		Proxy:   cfg.Instagram.Proxy,
		Jar:     c.Cookies.Jar(),
		Timeout: fetcher.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build Instagram HTTP client: %w", err)
	}

	userAgent := resolver.RandomUserAgent()
	igFetcher := fetcher.New(client, fetcher.Config{
		Referer:   instagramReferer,
		UserAgent: userAgent,
		RateLimit: cfg.Instagram.RateLimit,
	}, c.Logger)

	opts := []resolver.InstagramOption{
		resolver.WithCookies(c.Cookies),
		resolver.WithUserAgent(userAgent),
	}
	if cfg.Extractor.FFprobeEnabled {
		opts = append(opts, resolver.WithKindProber(extractor.NewKindProber(cfg.Extractor.FFprobeTimeout, c.Logger)))
	}

	instagram := resolver.NewInstagram(ytdlp, igFetcher, resolver.InstagramConfig{
		Proxy:     cfg.Instagram.Proxy,
		SleepMin:  cfg.Instagram.SleepMin,
		SleepMax:  cfg.Instagram.SleepMax,
		RateLimit: cfg.Instagram.RateLimit,
	}, c.Logger, opts...)

	return map[types.Platform]resolver.Resolver{
		types.PlatformTikTok:    resolver.NewTikTok(ytdlp, cfg.TikTok.Proxy, nil, c.Logger),
		types.PlatformInstagram: instagram,
	}, nil
}

// Start launches the background services: workspace cleanup, the admin
// server and the command menu. The bot itself is run by the caller.
func (c *Container) Start(ctx context.Context) {
	if c.Cleanup != nil {
		c.Cleanup.Start(ctx)
		c.cleanupStarted = true
		c.Logger.Info("Workspace cleanup started",
			zap.Duration("interval", c.Config.Cleanup.Interval),
			zap.Duration("max_age", c.Config.Cleanup.MaxAge),
		)
	}

	if c.Admin != nil {
		go func() {
			c.Logger.Info("Admin server listening", zap.String("addr", c.Config.Admin.Addr))
			if err := c.Admin.Listen(c.Config.Admin.Addr); err != nil {
				c.Logger.Error("Admin server stopped", zap.Error(err))
			}
		}()
	}

	if err := c.Bot.RegisterCommands(); err != nil {
		c.Logger.Warn("Failed to register bot commands", zap.Error(err))
	}
}

// Close releases every resource, bounded by ctx
func (c *Container) Close(ctx context.Context) error {
	c.Logger.Info("Closing application container")

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.Admin != nil {
		keep(c.Admin.ShutdownWithContext(ctx))
	}
	if c.cleanupStarted {
		c.Cleanup.Stop()
	}
	if err := c.Pool.Shutdown(ctx); err != nil {
		c.Logger.Warn("Worker pool did not drain in time", zap.Error(err))
		keep(err)
	}
	if c.Redis != nil {
		keep(c.Redis.Close())
	}

	return firstErr
}
