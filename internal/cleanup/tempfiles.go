package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes workspace entries older than maxAge
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, int64, error)
}

// Pruner drops expired in-memory state and reports how much it dropped
type Pruner interface {
	Prune() int
}

// TempFileCleanup periodically removes request directories left behind by
// crashes and drops expired cooldown entries
type TempFileCleanup struct {
	sweeper   Sweeper
	pruner    Pruner
	maxAge    time.Duration
	interval  time.Duration
	logger    *zap.Logger
	closeCh   chan struct{}
	stoppedCh chan struct{}
}

// NewTempFileCleanup creates a new cleanup service. pruner may be nil.
// maxAge: entries older than this are deleted (e.g., 2 hours)
// interval: how often to run cleanup (e.g., 30 minutes)
func NewTempFileCleanup(sweeper Sweeper, pruner Pruner, maxAge, interval time.Duration, logger *zap.Logger) *TempFileCleanup {
	return &TempFileCleanup{
		sweeper:   sweeper,
		pruner:    pruner,
		maxAge:    maxAge,
		interval:  interval,
		logger:    logger,
		closeCh:   make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the cleanup goroutine
func (tfc *TempFileCleanup) Start(ctx context.Context) {
	go tfc.run(ctx)
}

// Stop stops the cleanup goroutine
func (tfc *TempFileCleanup) Stop() {
	close(tfc.closeCh)
	<-tfc.stoppedCh
}

func (tfc *TempFileCleanup) run(ctx context.Context) {
	defer close(tfc.stoppedCh)

	ticker := time.NewTicker(tfc.interval)
	defer ticker.Stop()

	// Run once at startup
	tfc.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			tfc.RunOnce(ctx)
		case <-tfc.closeCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep
func (tfc *TempFileCleanup) RunOnce(ctx context.Context) {
	start := time.Now()

	removed, freed, err := tfc.sweeper.Sweep(ctx, tfc.maxAge)
	if err != nil {
		tfc.logger.Error("Temp file cleanup failed", zap.Error(err))
	}

	pruned := 0
	if tfc.pruner != nil {
		pruned = tfc.pruner.Prune()
	}

	if removed > 0 || pruned > 0 {
		tfc.logger.Info("Temp file cleanup completed",
			zap.Int("deleted_count", removed),
			zap.Int64("freed_bytes", freed),
			zap.String("freed", formatBytes(freed)),
			zap.Int("pruned_cooldowns", pruned),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return "0 MB"
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
