package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalWorkspace keeps request directories under one base directory on disk
type LocalWorkspace struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalWorkspace creates the base directory if needed
func NewLocalWorkspace(basePath string, logger *zap.Logger) (*LocalWorkspace, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalWorkspace{
		basePath: abs,
		logger:   logger,
	}, nil
}

// Base returns the absolute base directory
func (lw *LocalWorkspace) Base() string { return lw.basePath }

// Create makes the directory <base>/<requestID>
func (lw *LocalWorkspace) Create(requestID string) (string, error) {
	if requestID == "" || requestID != filepath.Base(requestID) || requestID == "." || requestID == ".." {
		return "", fmt.Errorf("invalid request id %q", requestID)
	}

	dir := filepath.Join(lw.basePath, requestID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create request directory: %w", err)
	}
	return dir, nil
}

// Release removes a request directory and everything in it. Paths outside
// the base directory are refused.
func (lw *LocalWorkspace) Release(dir string) error {
	if !lw.contains(dir) {
		return fmt.Errorf("refusing to remove %q outside %q", dir, lw.basePath)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove request directory: %w", err)
	}
	lw.logger.Debug("Request directory removed", zap.String("dir", dir))
	return nil
}

func (lw *LocalWorkspace) contains(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(lw.basePath, abs)
	if err != nil || rel == "." {
		return false
	}
	return !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// Sweep removes top-level entries not modified within maxAge. It returns
// the number of entries removed and the bytes they held.
func (lw *LocalWorkspace) Sweep(ctx context.Context, maxAge time.Duration) (int, int64, error) {
	entries, err := os.ReadDir(lw.basePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read storage directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var freed int64
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, freed, err
		}

		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(lw.basePath, e.Name())
		size := diskUsage(path)
		if err := os.RemoveAll(path); err != nil {
			lw.logger.Warn("Failed to delete stale entry", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
		freed += size
	}
	return removed, freed, nil
}

func diskUsage(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
