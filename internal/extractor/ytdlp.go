package extractor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/circuitbreaker"
	"github.com/KeremKalyoncu/medyan-bot/internal/retry"
)

// ErrNoVideoFormats is returned when the extractor finds a post without any
// video stream. Callers treat it as "no video", not as a failure.
var ErrNoVideoFormats = errors.New("no video formats found")

// DefaultUserAgent is sent when Options.UserAgent is empty
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options configures a single extractor invocation
type Options struct {
	Format              string
	MergeOutputFormat   string
	OutputTemplate      string
	Retries             int
	FragmentRetries     int
	ExtractorRetries    int
	SocketTimeout       time.Duration
	ConcurrentFragments int
	Proxy               string
	CookiesFile         string
	UserAgent           string
	Headers             map[string]string
	SleepMin            int   // seconds
	SleepMax            int   // seconds
	RateLimit           int64 // bytes per second
	Playlist            bool  // keep carousel/playlist entries
}

// YtDlp drives the yt-dlp binary with a circuit breaker and retries
type YtDlp struct {
	binaryPath     string
	timeout        time.Duration
	logger         *zap.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewYtDlp creates a new yt-dlp wrapper
func NewYtDlp(binaryPath string, timeout time.Duration, logger *zap.Logger) *YtDlp {
	cb := circuitbreaker.New("yt-dlp", circuitbreaker.Config{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		IsFailure:        isBreakerFailure,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.Retryable = isRetryableError
	retryConfig.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("Retrying yt-dlp operation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	return &YtDlp{
		binaryPath:     binaryPath,
		timeout:        timeout,
		logger:         logger,
		circuitBreaker: cb,
		retryConfig:    retryConfig,
	}
}

// isBreakerFailure keeps content-level answers from tripping the breaker
func isBreakerFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNoVideoFormats) && !errors.Is(err, context.Canceled)
}

// isRetryableError determines if error should trigger retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoVideoFormats) || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	nonRetryablePatterns := []string{
		"404",
		"403",
		"401",
		"login required",
		"unsupported url",
		"private",
		"unavailable",
		"removed",
		"not found",
		"executable file not found",
		"no such file",
	}
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	retryablePatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"500",
		"502",
		"503",
		"504",
		"network",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	// Rate limiting is left to the resolver's cooldown; hammering makes it worse.
	return false
}

// Probe returns the metadata tree for url without downloading anything
func (y *YtDlp) Probe(ctx context.Context, url string, opts Options) (*Info, error) {
	args := append([]string{"-J", "--no-warnings"}, buildArgs(opts)...)
	args = append(args, url)
	return y.run(ctx, url, args)
}

// Download fetches the media for url and returns the metadata tree with the
// produced file paths filled in
func (y *YtDlp) Download(ctx context.Context, url string, opts Options) (*Info, error) {
	args := append([]string{"-J", "--no-simulate", "--no-warnings", "--no-progress"}, buildArgs(opts)...)
	args = append(args, url)

	y.logger.Info("Starting download",
		zap.String("url", url),
		zap.String("output", opts.OutputTemplate),
	)
	return y.run(ctx, url, args)
}

func (y *YtDlp) run(ctx context.Context, url string, args []string) (*Info, error) {
	var info *Info

	err := y.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, y.retryConfig, func() error {
			output, err := y.execute(ctx, args)
			if err != nil {
				return err
			}

			raw, err := extractJSONObjectFromOutput(output)
			if err != nil {
				return fmt.Errorf("failed to parse metadata: %w", err)
			}
			info, err = ParseInfo([]byte(raw))
			return err
		})
	})
	if err != nil {
		y.logger.Debug("yt-dlp failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}

	return info, nil
}

// buildArgs turns options into yt-dlp flags shared by probe and download
func buildArgs(opts Options) []string {
	var args []string

	if !opts.Playlist {
		args = append(args, "--no-playlist")
	}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.MergeOutputFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeOutputFormat)
	}
	if opts.OutputTemplate != "" {
		args = append(args, "-o", opts.OutputTemplate)
	}
	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries))
	}
	if opts.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(opts.FragmentRetries))
	}
	if opts.ExtractorRetries > 0 {
		args = append(args, "--extractor-retries", strconv.Itoa(opts.ExtractorRetries))
	}
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(opts.SocketTimeout/time.Second)))
	}
	if opts.ConcurrentFragments > 0 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(opts.ConcurrentFragments))
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	args = append(args, "--user-agent", ua)

	for _, k := range sortedKeys(opts.Headers) {
		args = append(args, "--add-header", k+":"+opts.Headers[k])
	}

	if opts.SleepMin > 0 || opts.SleepMax > 0 {
		lo, hi := opts.SleepMin, opts.SleepMax
		if hi < lo {
			hi = lo
		}
		args = append(args, "--sleep-interval", strconv.Itoa(lo))
		if hi > lo {
			args = append(args, "--max-sleep-interval", strconv.Itoa(hi))
		}
	}
	if opts.RateLimit > 0 {
		args = append(args, "--limit-rate", strconv.FormatInt(opts.RateLimit, 10))
	}

	return args
}

func extractJSONObjectFromOutput(output string) (string, error) {
	// yt-dlp may interleave warnings with the JSON document; the document is
	// always a single line, the last one that looks like an object wins.
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			return line, nil
		}
	}
	return "", fmt.Errorf("no JSON object found in yt-dlp output")
}

// execute runs yt-dlp and returns its combined output
func (y *YtDlp) execute(ctx context.Context, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, y.binaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		text := string(output)
		if strings.Contains(text, "No video formats found") {
			return "", fmt.Errorf("%w: %s", ErrNoVideoFormats, lastLine(text))
		}
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("yt-dlp timed out after %s", y.timeout)
		}
		return "", fmt.Errorf("command failed: %w - %s", err, lastLine(text))
	}

	return string(output), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
