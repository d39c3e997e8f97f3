// Package fetcher streams platform media and pages over HTTP.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/KeremKalyoncu/medyan-bot/internal/pool"
)

// DefaultTimeout bounds a single fetch, headers and body included
const DefaultTimeout = 60 * time.Second

// maxPageBytes caps how much page HTML is read
const maxPageBytes = 8 << 20

// ErrEmptyBody is returned when the server answered 2xx with no content
var ErrEmptyBody = errors.New("empty response body")

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Status, e.URL)
}

// Config holds fetcher configuration
type Config struct {
	Referer   string        // page referrer matching the source platform
	UserAgent func() string // nil uses a fixed browser string
	Timeout   time.Duration
	RateLimit int64 // bytes per second, 0 disables throttling
}

// Fetcher downloads binaries and pages with browser-like headers
type Fetcher struct {
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a fetcher using client, which carries proxy and cookie jar
func New(client *http.Client, cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	f := &Fetcher{client: client, cfg: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < pool.ChunkSize {
			burst = pool.ChunkSize
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f
}

func (f *Fetcher) userAgent() string {
	if f.cfg.UserAgent != nil {
		if ua := f.cfg.UserAgent(); ua != "" {
			return ua
		}
	}
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
}

func (f *Fetcher) newRequest(ctx context.Context, rawURL, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	return req, nil
}

// Download streams rawURL into dest, creating parent directories.
// A partial file is removed on failure.
func (f *Fetcher) Download(ctx context.Context, rawURL, dest string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := f.newRequest(ctx, rawURL, "image/avif,image/webp,image/*,video/*;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: rawURL, Status: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	written, copyErr := f.copy(ctx, out, resp.Body)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && written == 0 {
		copyErr = ErrEmptyBody
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return "", copyErr
	}

	if _, err := os.Stat(dest); err != nil {
		return "", err
	}

	f.logger.Debug("Fetched media",
		zap.String("url", rawURL),
		zap.String("path", dest),
		zap.Int64("bytes", written),
	)
	return dest, nil
}

// copy streams src into dst in fixed-size chunks, honouring the byte rate
func (f *Fetcher) copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := pool.Chunks.Get()
	defer pool.Chunks.Put(buf)

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if f.limiter != nil {
				if err := f.limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, err
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// FetchPage returns the HTML body of rawURL
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := f.newRequest(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
