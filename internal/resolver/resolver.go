// Package resolver turns a normalized post link into media files on disk.
package resolver

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/extractor"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
)

// Resolver produces the media files for one request inside dir
type Resolver interface {
	Resolve(ctx context.Context, req *types.MediaRequest, dir string) (*types.ExtractionResult, error)
}

// Extractor is the metadata and download capability resolvers drive
type Extractor interface {
	Probe(ctx context.Context, url string, opts extractor.Options) (*extractor.Info, error)
	Download(ctx context.Context, url string, opts extractor.Options) (*extractor.Info, error)
}

// Fetcher streams direct media URLs and fetches page HTML
type Fetcher interface {
	Download(ctx context.Context, url, dest string) (string, error)
	FetchPage(ctx context.Context, url string) (string, error)
}

// KindProber refines the media kind of files with unhelpful extensions
type KindProber interface {
	Kind(path string) types.MediaKind
}

// UserAgentFunc returns the User-Agent for the next outbound request
type UserAgentFunc func() string

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// RandomUserAgent returns a provider picking from a small pool of desktop browsers
func RandomUserAgent() UserAgentFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return userAgents[rng.Intn(len(userAgents))]
	}
}

// FixedUserAgent always returns ua
func FixedUserAgent(ua string) UserAgentFunc {
	return func() string { return ua }
}

var mediaExts = map[string]bool{
	".mp4":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// collectMediaFiles lists recognized, non-empty media files directly in dir
func collectMediaFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !mediaExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if info, err := e.Info(); err != nil || info.Size() == 0 {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files
}

// buildResult converts paths into items, dropping anything unusable
func buildResult(paths []string, stage string, prober KindProber, logger *zap.Logger) *types.ExtractionResult {
	result := &types.ExtractionResult{Stage: stage}
	for _, p := range paths {
		item, err := types.NewMediaItem(p)
		if err != nil {
			logger.Debug("Skipping unusable file", zap.String("path", p), zap.Error(err))
			continue
		}
		if item.Kind == types.KindUnknown && prober != nil {
			item.Kind = prober.Kind(p)
		}
		result.Items = append(result.Items, item)
	}
	return result
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// safeName makes an extractor-assigned id usable as a directory name
func safeName(id, fallback string) string {
	id = unsafePathChars.ReplaceAllString(id, "_")
	id = strings.Trim(id, "_")
	if id == "" {
		return fallback
	}
	return id
}
