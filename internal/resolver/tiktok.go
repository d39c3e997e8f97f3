package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/errors"
	"github.com/KeremKalyoncu/medyan-bot/internal/extractor"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
)

// altContainers are probed when the reported file name does not exist,
// since merging may change the container after the name was reported
var altContainers = []string{".mp4", ".webm", ".mkv"}

// TikTok resolves TikTok links with a single extractor download
type TikTok struct {
	extractor Extractor
	proxy     string
	userAgent UserAgentFunc
	logger    *zap.Logger
}

// NewTikTok creates a TikTok resolver
func NewTikTok(ex Extractor, proxy string, userAgent UserAgentFunc, logger *zap.Logger) *TikTok {
	if userAgent == nil {
		userAgent = FixedUserAgent(extractor.DefaultUserAgent)
	}
	return &TikTok{extractor: ex, proxy: proxy, userAgent: userAgent, logger: logger}
}

func (t *TikTok) options(dir string) extractor.Options {
	return extractor.Options{
		Format:            "best",
		MergeOutputFormat: "mp4",
		OutputTemplate:    filepath.Join(dir, "%(id)s.%(ext)s"),
		Retries:           5,
		FragmentRetries:   5,
		SocketTimeout:     60 * time.Second,
		Proxy:             t.proxy,
		UserAgent:         t.userAgent(),
	}
}

// Resolve implements Resolver. Extractor failures never escape as anything
// but ErrResolutionFailed.
func (t *TikTok) Resolve(ctx context.Context, req *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
	log := t.logger.With(zap.String("request_id", req.ID), zap.String("url", req.URL))

	info, err := t.extractor.Download(ctx, req.URL, t.options(dir))
	if err != nil {
		log.Error("TikTok download failed", zap.Error(err))
		return nil, errors.ErrResolutionFailed.WithCause(err)
	}

	path := locateDownload(info, dir)
	if path == "" {
		log.Warn("TikTok download produced no file")
		return nil, errors.ErrNoMedia
	}

	result := buildResult([]string{path}, "extractor", nil, log)
	if result.IsEmpty() {
		return nil, errors.ErrNoMedia
	}
	return result, nil
}

// locateDownload returns the first existing file the extractor reported,
// trying sibling containers with the same base name
func locateDownload(info *extractor.Info, dir string) string {
	candidates := extractor.DownloadedFiles(info)
	if len(candidates) == 0 && info != nil && info.ID != "" {
		ext := info.Ext
		if ext == "" {
			ext = "mp4"
		}
		candidates = append(candidates, filepath.Join(dir, info.ID+"."+ext))
	}

	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
		base := strings.TrimSuffix(c, filepath.Ext(c))
		for _, ext := range altContainers {
			if alt := base + ext; fileExists(alt) {
				return alt
			}
		}
	}
	return ""
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
