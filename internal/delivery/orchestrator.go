// Package delivery drives one chat message from link to delivered media.
package delivery

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/errors"
	"github.com/KeremKalyoncu/medyan-bot/internal/metrics"
	"github.com/KeremKalyoncu/medyan-bot/internal/platform"
	"github.com/KeremKalyoncu/medyan-bot/internal/pool"
	"github.com/KeremKalyoncu/medyan-bot/internal/ratelimit"
	"github.com/KeremKalyoncu/medyan-bot/internal/resolver"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
	"github.com/KeremKalyoncu/medyan-bot/pkg/storage"
)

// DefaultMaxFileBytes is the largest file the chat transport accepts
const DefaultMaxFileBytes int64 = 50 << 20

// MediaType selects how a file is presented in the chat
type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// MediaTypeFor picks the presentation for a file by extension. WebP goes
// out as a document.
func MediaTypeFor(path string) MediaType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return MediaPhoto
	case ".webp":
		return MediaDocument
	default:
		return MediaVideo
	}
}

// Message is an inbound chat message
type Message struct {
	Text     string
	UserID   int64
	ChatID   int64
	Language Language
}

// Conversation is the chat the orchestrator answers in
type Conversation interface {
	// Status posts the progress message, or edits it if one is showing
	Status(ctx context.Context, text string) error
	// ClearStatus deletes the progress message if one is showing
	ClearStatus(ctx context.Context) error
	SendMedia(ctx context.Context, path string, kind MediaType) error
	Reply(ctx context.Context, text string) error
}

// Runner executes blocking work away from the caller's goroutine
type Runner interface {
	Do(ctx context.Context, task pool.Task) error
}

// Gate bounds concurrent resolutions
type Gate interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps are the collaborators of an Orchestrator. Cooldown, Gate and Runner
// are optional.
type Deps struct {
	Resolvers map[types.Platform]resolver.Resolver
	Workspace storage.Workspace
	Cooldown  ratelimit.Cooldown
	Gate      Gate
	Runner    Runner
	Metrics   *metrics.Metrics
}

// Config holds delivery limits
type Config struct {
	MaxFileBytes int64
}

// Orchestrator handles one message at a time per call and is safe for
// concurrent use
type Orchestrator struct {
	deps     Deps
	maxBytes int64
	logger   *zap.Logger
	newID    func() string
}

// New creates an orchestrator
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Orchestrator{
		deps:     deps,
		maxBytes: cfg.MaxFileBytes,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Handle processes msg end to end: link extraction, throttling, resolution,
// size check, delivery and workspace cleanup. The returned error describes
// the outcome for logging; the user has already been answered.
func (o *Orchestrator) Handle(ctx context.Context, msg Message, conv Conversation) error {
	lang := msg.Language

	link, plat, err := platform.Parse(msg.Text)
	if err != nil {
		o.reply(ctx, conv, T(lang, MsgNoLink))
		return err
	}

	req := &types.MediaRequest{
		ID:        o.newID(),
		URL:       link,
		Platform:  plat,
		UserID:    msg.UserID,
		ChatID:    msg.ChatID,
		CreatedAt: time.Now(),
	}
	log := o.logger.With(
		zap.String("request_id", req.ID),
		zap.String("platform", string(plat)),
		zap.Int64("user_id", msg.UserID),
		zap.String("url", link),
	)

	if plat == types.PlatformInstagram {
		if secs, throttled := o.checkCooldown(ctx, msg.UserID, log); throttled {
			o.deps.Metrics.RecordCooldownRejection()
			o.reply(ctx, conv, T(lang, MsgCooldown, secs))
			return errors.ErrRateLimited.WithDetails(errors.CooldownDetails{RemainingSeconds: secs})
		}
	}

	o.deps.Metrics.RecordRequestStart(string(plat))
	start := time.Now()

	result, err := o.process(ctx, req, lang, conv, log)
	if err != nil {
		o.deps.Metrics.RecordFailed(string(plat))
		log.Warn("Request failed",
			zap.String("code", errors.GetErrorCode(err)),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}

	o.deps.Metrics.RecordDelivered(string(plat), time.Since(start), len(result.Items), result.TotalSize())
	log.Info("Media delivered",
		zap.String("stage", result.Stage),
		zap.Int("items", len(result.Items)),
		zap.Int64("bytes", result.TotalSize()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// checkCooldown returns the whole seconds left when the user must wait.
// A failing cooldown backend admits the request.
func (o *Orchestrator) checkCooldown(ctx context.Context, userID int64, log *zap.Logger) (int, bool) {
	if o.deps.Cooldown == nil {
		return 0, false
	}
	remaining, err := o.deps.Cooldown.Acquire(ctx, userID)
	if err != nil {
		log.Warn("Cooldown check failed, admitting request", zap.Error(err))
		return 0, false
	}
	if remaining <= 0 {
		return 0, false
	}
	return int(math.Ceil(remaining.Seconds())), true
}

func (o *Orchestrator) process(ctx context.Context, req *types.MediaRequest, lang Language, conv Conversation, log *zap.Logger) (*types.ExtractionResult, error) {
	o.status(ctx, conv, T(lang, MsgDownloading), log)
	defer func() {
		if err := conv.ClearStatus(context.WithoutCancel(ctx)); err != nil {
			log.Debug("Failed to clear status", zap.Error(err))
		}
	}()

	dir, err := o.deps.Workspace.Create(req.ID)
	if err != nil {
		o.fail(ctx, conv, T(lang, MsgInternalError, err.Error()), log)
		return nil, errors.ErrInternal.WithCause(err)
	}
	defer func() {
		if err := o.deps.Workspace.Release(dir); err != nil {
			log.Error("Failed to remove request directory", zap.String("dir", dir), zap.Error(err))
		}
	}()

	result, err := o.resolve(ctx, req, dir)
	if err != nil {
		o.fail(ctx, conv, resolveFailureText(lang, req.Platform, err), log)
		return nil, err
	}
	o.deps.Metrics.RecordStageWin(string(req.Platform) + ":" + result.Stage)

	// One oversized file cancels the whole batch.
	for _, item := range result.Items {
		if item.Size > o.maxBytes {
			o.deps.Metrics.RecordOversized()
			o.fail(ctx, conv, T(lang, MsgTooLarge, float64(item.Size)/(1<<20), o.maxBytes>>20), log)
			return nil, errors.ErrOversized.WithDetails(errors.SizeDetails{
				Path:  item.Path,
				Size:  item.Size,
				Limit: o.maxBytes,
			})
		}
	}

	o.status(ctx, conv, T(lang, MsgUploading), log)
	for i, item := range result.Items {
		if err := conv.SendMedia(ctx, item.Path, MediaTypeFor(item.Path)); err != nil {
			log.Error("Failed to send media",
				zap.Int("index", i),
				zap.String("path", item.Path),
				zap.Error(err),
			)
			o.fail(ctx, conv, T(lang, MsgDeliveryFailed, err.Error()), log)
			return nil, errors.ErrDeliveryFailed.WithCause(err)
		}
	}
	return result, nil
}

// resolve runs the platform resolver on the worker pool, inside the gate
// for Instagram
func (o *Orchestrator) resolve(ctx context.Context, req *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
	r, ok := o.deps.Resolvers[req.Platform]
	if !ok {
		return nil, errors.ErrUnsupportedPlatform
	}

	var result *types.ExtractionResult
	task := func(ctx context.Context) error {
		res, err := r.Resolve(ctx, req, dir)
		result = res
		return err
	}
	run := func(ctx context.Context) error {
		if o.deps.Runner == nil {
			return task(ctx)
		}
		return o.deps.Runner.Do(ctx, task)
	}

	var err error
	if req.Platform == types.PlatformInstagram && o.deps.Gate != nil {
		err = o.deps.Gate.Do(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		if !errors.IsCustomError(err) {
			err = errors.ErrResolutionFailed.WithCause(err)
		}
		return nil, err
	}
	if result.IsEmpty() {
		return nil, errors.ErrNoMedia
	}
	return result, nil
}

// resolveFailureText tells the user the media is unreachable, or shows the
// error itself when something other than the platform failed
func resolveFailureText(lang Language, plat types.Platform, err error) string {
	switch errors.GetErrorCode(err) {
	case errors.ErrNoMedia.Code, errors.ErrResolutionFailed.Code:
		if plat == types.PlatformInstagram {
			return T(lang, MsgInstagramFailed)
		}
		return T(lang, MsgTikTokFailed)
	default:
		return T(lang, MsgInternalError, err.Error())
	}
}

func (o *Orchestrator) status(ctx context.Context, conv Conversation, text string, log *zap.Logger) {
	if err := conv.Status(ctx, text); err != nil {
		log.Debug("Failed to update status", zap.Error(err))
	}
}

// fail removes the status message and replies with text
func (o *Orchestrator) fail(ctx context.Context, conv Conversation, text string, log *zap.Logger) {
	if err := conv.ClearStatus(ctx); err != nil {
		log.Debug("Failed to clear status", zap.Error(err))
	}
	o.reply(ctx, conv, text)
}

func (o *Orchestrator) reply(ctx context.Context, conv Conversation, text string) {
	if err := conv.Reply(ctx, text); err != nil {
		o.logger.Warn("Failed to send reply", zap.Error(err))
	}
}
