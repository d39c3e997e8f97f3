package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/errors"
	"github.com/KeremKalyoncu/medyan-bot/internal/extractor"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
)

const (
	// StageExtractor is the probe-then-download stage
	StageExtractor = "extractor"
	// StageDirectURLs downloads URLs harvested from metadata and page HTML
	StageDirectURLs = "direct-urls"
	// StageOpenGraph downloads og:video and og:image URLs
	StageOpenGraph = "open-graph"

	maxDirectDownloads = 10
	maxOGDownloads     = 5
)

// CookieSource hands yt-dlp a private copy of the session cookies
type CookieSource interface {
	Snapshot(dir string) (string, error)
}

// InstagramConfig holds the throttling and network knobs for Instagram
type InstagramConfig struct {
	Proxy     string
	SleepMin  int
	SleepMax  int
	RateLimit int64
}

// Strategy is one stage of the Instagram fallback chain. It returns the
// files it produced; an error aborts the whole chain.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, a *attempt) ([]string, error)
}

// attempt carries the state shared by the stages of one resolution
type attempt struct {
	req     *types.MediaRequest
	dir     string
	itemID  string
	opts    extractor.Options
	info    *extractor.Info
	page    string
	fetched bool
	log     *zap.Logger
}

// Instagram resolves Instagram links through an ordered fallback chain
type Instagram struct {
	extractor  Extractor
	fetcher    Fetcher
	cookies    CookieSource
	prober     KindProber
	userAgent  UserAgentFunc
	cfg        InstagramConfig
	logger     *zap.Logger
	strategies []Strategy
}

// InstagramOption customizes an Instagram resolver
type InstagramOption func(*Instagram)

// WithKindProber sets the prober used for files with uninformative names
func WithKindProber(p KindProber) InstagramOption {
	return func(r *Instagram) { r.prober = p }
}

// WithCookies sets the cookie source handed to the extractor
func WithCookies(c CookieSource) InstagramOption {
	return func(r *Instagram) { r.cookies = c }
}

// WithUserAgent sets the User-Agent provider for extractor calls
func WithUserAgent(ua UserAgentFunc) InstagramOption {
	return func(r *Instagram) { r.userAgent = ua }
}

// NewInstagram creates an Instagram resolver with the default chain:
// extractor, direct URLs, Open Graph
func NewInstagram(ex Extractor, f Fetcher, cfg InstagramConfig, logger *zap.Logger, opts ...InstagramOption) *Instagram {
	r := &Instagram{
		extractor: ex,
		fetcher:   f,
		cfg:       cfg,
		logger:    logger,
		userAgent: FixedUserAgent(extractor.DefaultUserAgent),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.strategies = []Strategy{
		{Name: StageExtractor, Run: r.extractorStage},
		{Name: StageDirectURLs, Run: r.directURLStage},
		{Name: StageOpenGraph, Run: r.openGraphStage},
	}
	return r
}

// Stages returns the names of the chain stages in order
func (r *Instagram) Stages() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name
	}
	return names
}

// Resolve implements Resolver. Stages run in order and the first one that
// yields at least one usable file wins.
func (r *Instagram) Resolve(ctx context.Context, req *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
	log := r.logger.With(zap.String("request_id", req.ID), zap.String("url", req.URL))

	a := &attempt{
		req:    req,
		dir:    dir,
		itemID: "ig",
		log:    log,
	}
	a.opts = r.baseOptions()
	if r.cookies != nil {
		path, err := r.cookies.Snapshot(dir)
		if err != nil {
			log.Warn("Failed to snapshot cookies", zap.Error(err))
		} else if path != "" {
			a.opts.CookiesFile = path
		}
	}

	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, errors.ErrResolutionFailed.WithCause(err)
		}

		start := time.Now()
		files, err := s.Run(ctx, a)
		if err != nil {
			r.logFailure(log, s.Name, err)
			return nil, errors.ErrResolutionFailed.WithCause(err)
		}

		result := buildResult(files, s.Name, r.prober, log)
		if !result.IsEmpty() {
			log.Info("Instagram media resolved",
				zap.String("stage", s.Name),
				zap.Int("items", len(result.Items)),
				zap.Duration("duration", time.Since(start)),
			)
			return result, nil
		}
		log.Debug("Stage produced nothing", zap.String("stage", s.Name))
	}

	log.Warn("All Instagram stages came up empty")
	return nil, errors.ErrNoMedia
}

func (r *Instagram) baseOptions() extractor.Options {
	return extractor.Options{
		MergeOutputFormat:   "mp4",
		Retries:             5,
		FragmentRetries:     5,
		ExtractorRetries:    5,
		SocketTimeout:       30 * time.Second,
		ConcurrentFragments: 1,
		Proxy:               r.cfg.Proxy,
		UserAgent:           r.userAgent(),
		Headers: map[string]string{
			"Referer":         "https://www.instagram.com/",
			"Accept-Language": "en-US,en;q=0.9",
		},
		SleepMin:  r.cfg.SleepMin,
		SleepMax:  r.cfg.SleepMax,
		RateLimit: r.cfg.RateLimit,
		Playlist:  true,
	}
}

// extractorStage probes the post and downloads it only when a real video
// stream is present. Probe failures leave the chain without metadata.
func (r *Instagram) extractorStage(ctx context.Context, a *attempt) ([]string, error) {
	info, err := r.extractor.Probe(ctx, a.req.URL, a.opts)
	if err != nil {
		a.log.Warn("Instagram probe failed", zap.Error(err))
		hintCredentials(a.log, err)
		return nil, nil
	}
	a.info = info
	a.itemID = safeName(info.ID, "ig")

	if !extractor.HasVideo(info) {
		return nil, nil
	}

	itemDir := filepath.Join(a.dir, a.itemID)
	opts := a.opts
	opts.OutputTemplate = filepath.Join(itemDir, "%(id)s_%(autonumber)s.%(ext)s")

	if _, err := r.extractor.Download(ctx, a.req.URL, opts); err != nil {
		if stderrors.Is(err, extractor.ErrNoVideoFormats) {
			a.log.Info("No video formats, falling back to direct URLs")
			return nil, nil
		}
		return nil, err
	}
	return collectMediaFiles(itemDir), nil
}

// directURLStage downloads image URLs harvested from the page and metadata
func (r *Instagram) directURLStage(ctx context.Context, a *attempt) ([]string, error) {
	candidates := mergeCandidates(harvestHTML(r.page(ctx, a)), harvestMetadata(a.info))
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > maxDirectDownloads {
		candidates = candidates[:maxDirectDownloads]
	}

	dir := filepath.Join(a.dir, "fallback_"+a.itemID)
	var files []string
	for i, u := range candidates {
		if p := r.fetchOne(ctx, a, u, dir, i+1, ".jpg"); p != "" {
			files = append(files, p)
		}
	}
	return files, nil
}

// openGraphStage downloads the media announced in og:video and og:image tags
func (r *Instagram) openGraphStage(ctx context.Context, a *attempt) ([]string, error) {
	candidates := openGraphMedia(r.page(ctx, a))
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > maxOGDownloads {
		candidates = candidates[:maxOGDownloads]
	}

	dir := filepath.Join(a.dir, "og_"+a.itemID)
	var files []string
	for i, c := range candidates {
		fallback := ".jpg"
		if c.Video {
			fallback = ".mp4"
		}
		if p := r.fetchOne(ctx, a, c.URL, dir, i+1, fallback); p != "" {
			files = append(files, p)
		}
	}
	return files, nil
}

// page fetches the post HTML once per attempt. A failed fetch is retried by
// the next stage that asks.
func (r *Instagram) page(ctx context.Context, a *attempt) string {
	if a.fetched {
		return a.page
	}
	body, err := r.fetcher.FetchPage(ctx, a.req.URL)
	if err != nil {
		a.log.Warn("Failed to fetch post page", zap.Error(err))
		return ""
	}
	a.page, a.fetched = body, true
	return body
}

// fetchOne downloads u into dir as file number n. An image extension on the
// URL is trusted as is. Anything else is stored bare so the prober can look
// at the content, then named after what it found or fallback. Failures are
// logged and skipped.
func (r *Instagram) fetchOne(ctx context.Context, a *attempt, u, dir string, n int, fallback string) string {
	if ext := urlExt(u); imageExts[ext] || r.prober == nil {
		if !imageExts[ext] {
			ext = fallback
		}
		path, err := r.fetcher.Download(ctx, u, filepath.Join(dir, fmt.Sprintf("%d%s", n, ext)))
		if err != nil {
			a.log.Warn("Direct download failed", zap.String("media_url", u), zap.Error(err))
			return ""
		}
		return path
	}

	path, err := r.fetcher.Download(ctx, u, filepath.Join(dir, strconv.Itoa(n)))
	if err != nil {
		a.log.Warn("Direct download failed", zap.String("media_url", u), zap.Error(err))
		return ""
	}
	return r.nameByContent(path, fallback, a.log)
}

// nameByContent gives an extensionless download the extension matching its
// detected kind
func (r *Instagram) nameByContent(path, fallback string, log *zap.Logger) string {
	ext := fallback
	switch r.prober.Kind(path) {
	case types.KindVideo:
		ext = ".mp4"
	case types.KindImage:
		ext = ".jpg"
	}

	named := path + ext
	if err := os.Rename(path, named); err != nil {
		log.Warn("Failed to name downloaded file", zap.String("path", path), zap.Error(err))
		_ = os.Remove(path)
		return ""
	}
	return named
}

func (r *Instagram) logFailure(log *zap.Logger, stage string, err error) {
	log.Error("Instagram resolution aborted", zap.String("stage", stage), zap.Error(err))
	hintCredentials(log, err)
}

// hintCredentials tells the operator to refresh cookies when err looks like
// an authentication wall
func hintCredentials(log *zap.Logger, err error) {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"cookies", "login", "rate-limit"} {
		if strings.Contains(msg, hint) {
			log.Warn("Instagram may require fresh session cookies; export them to the configured cookies file")
			return
		}
	}
}
