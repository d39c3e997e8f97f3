package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all bot configuration
type Config struct {
	Telegram  TelegramConfig
	Download  DownloadConfig
	Instagram InstagramConfig
	TikTok    TikTokConfig
	Extractor ExtractorConfig
	Worker    WorkerConfig
	Redis     RedisConfig
	Admin     AdminConfig
	Logger    LoggerConfig
	Cleanup   CleanupConfig
}

// TelegramConfig holds chat transport configuration
type TelegramConfig struct {
	Token       string
	PollTimeout int // Long polling timeout in seconds
	Debug       bool
}

// DownloadConfig holds the local workspace and delivery limits
type DownloadConfig struct {
	Dir          string
	MaxFileBytes int64
}

// InstagramConfig holds Instagram resolver and throttling settings
type InstagramConfig struct {
	Proxy         string
	CookiesFile   string
	Cooldown      time.Duration
	MaxConcurrent int
	RateLimit     int64 // bytes per second, 0 means unlimited
	SleepMin      int   // seconds between extractor requests
	SleepMax      int
}

// TikTokConfig holds TikTok resolver settings
type TikTokConfig struct {
	Proxy string
}

// ExtractorConfig holds yt-dlp and ffprobe settings
type ExtractorConfig struct {
	YtdlpPath      string
	YtdlpTimeout   time.Duration
	FFprobeEnabled bool
	FFprobeTimeout time.Duration
}

// WorkerConfig holds the resolution worker pool settings
type WorkerConfig struct {
	Concurrency     int
	ShutdownTimeout time.Duration
}

// RedisConfig holds the optional shared cooldown backend. Empty Address
// keeps cooldowns in process memory.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// AdminConfig holds the health/metrics HTTP server. Empty Addr disables it.
type AdminConfig struct {
	Addr        string
	Token       string // guards /metrics and /debug/pprof when set
	EnablePprof bool
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	File   string // optional rotated log file
}

// CleanupConfig holds the stale workspace sweeper settings
type CleanupConfig struct {
	Enabled  bool
	Interval time.Duration
	MaxAge   time.Duration
}

// DefaultMaxFileBytes is the largest single file the chat transport accepts
const DefaultMaxFileBytes int64 = 50 * 1024 * 1024

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment values win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	httpsProxy := getEnv("HTTPS_PROXY", "")
	httpProxy := getEnv("HTTP_PROXY", "")

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:       getEnv("BOT_TOKEN", ""),
			PollTimeout: getEnvInt("TELEGRAM_POLL_TIMEOUT", 60),
			Debug:       getEnvBool("TELEGRAM_DEBUG", false),
		},
		Download: DownloadConfig{
			Dir:          getEnv("DOWNLOAD_DIR", "downloads"),
			MaxFileBytes: getEnvInt64("MAX_FILE_BYTES", DefaultMaxFileBytes),
		},
		Instagram: InstagramConfig{
			Proxy:         firstNonEmpty(getEnv("INSTAGRAM_PROXY", ""), httpsProxy, httpProxy),
			CookiesFile:   getEnv("INSTAGRAM_COOKIES_FILE", ""),
			Cooldown:      getEnvDuration("INSTAGRAM_COOLDOWN", 30*time.Second),
			MaxConcurrent: getEnvInt("INSTAGRAM_MAX_CONCURRENT", 1),
			RateLimit:     getEnvInt64("INSTAGRAM_RATE_LIMIT", 0),
			SleepMin:      getEnvInt("INSTAGRAM_SLEEP_MIN", 0),
			SleepMax:      getEnvInt("INSTAGRAM_SLEEP_MAX", 0),
		},
		TikTok: TikTokConfig{
			Proxy: firstNonEmpty(getEnv("TIKTOK_PROXY", ""), httpsProxy, httpProxy),
		},
		Extractor: ExtractorConfig{
			YtdlpPath:      getEnv("YTDLP_PATH", "yt-dlp"),
			YtdlpTimeout:   getEnvDuration("YTDLP_TIMEOUT", 5*time.Minute),
			FFprobeEnabled: getEnvBool("FFPROBE_ENABLED", false),
			FFprobeTimeout: getEnvDuration("FFPROBE_TIMEOUT", 15*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:     getEnvInt("WORKER_CONCURRENCY", 4),
			ShutdownTimeout: getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "cooldown:"),
		},
		Admin: AdminConfig{
			Addr:        getEnv("ADMIN_ADDR", ""),
			Token:       getEnv("ADMIN_TOKEN", ""),
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Cleanup: CleanupConfig{
			Enabled:  getEnvBool("CLEANUP_ENABLED", true),
			Interval: getEnvDuration("CLEANUP_INTERVAL", 30*time.Minute),
			MaxAge:   getEnvDuration("CLEANUP_MAX_AGE", 2*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}

	if c.Download.Dir == "" {
		return fmt.Errorf("DOWNLOAD_DIR must not be empty")
	}

	if c.Download.MaxFileBytes <= 0 {
		return fmt.Errorf("MAX_FILE_BYTES must be > 0")
	}

	if c.Extractor.YtdlpPath == "" {
		return fmt.Errorf("YTDLP_PATH is required")
	}

	if c.Instagram.MaxConcurrent < 1 {
		return fmt.Errorf("INSTAGRAM_MAX_CONCURRENT must be >= 1")
	}

	if c.Instagram.Cooldown < 0 {
		return fmt.Errorf("INSTAGRAM_COOLDOWN must not be negative")
	}

	if c.Instagram.SleepMin < 0 || c.Instagram.SleepMax < 0 {
		return fmt.Errorf("INSTAGRAM_SLEEP_MIN and INSTAGRAM_SLEEP_MAX must not be negative")
	}

	if c.Instagram.SleepMax > 0 && c.Instagram.SleepMax < c.Instagram.SleepMin {
		return fmt.Errorf("INSTAGRAM_SLEEP_MAX (%d) must be >= INSTAGRAM_SLEEP_MIN (%d)",
			c.Instagram.SleepMax, c.Instagram.SleepMin)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") and bare seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
