package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type namedHandler struct {
	name string
	fn   func(ctx context.Context) error
}

// GracefulShutdown handles graceful application shutdown
type GracefulShutdown struct {
	logger   *zap.Logger
	timeout  time.Duration
	handlers []namedHandler
}

// NewGracefulShutdown creates a shutdown handler
func NewGracefulShutdown(logger *zap.Logger, timeout time.Duration) *GracefulShutdown {
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a cleanup handler. Handlers run in registration order.
func (gs *GracefulShutdown) Register(name string, handler func(ctx context.Context) error) {
	gs.handlers = append(gs.handlers, namedHandler{name: name, fn: handler})
}

// Wait blocks until SIGINT, SIGTERM or the end of ctx, then runs the
// cleanup handlers
func (gs *GracefulShutdown) Wait(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	if ctx.Err() != nil {
		gs.logger.Info("Shutdown requested", zap.Error(ctx.Err()))
	} else {
		gs.logger.Info("Shutdown signal received")
	}

	gs.Shutdown()
}

// Shutdown runs every handler under one shared timeout. A failing handler
// does not stop the rest.
func (gs *GracefulShutdown) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	for i, h := range gs.handlers {
		gs.logger.Info("Executing cleanup handler", zap.Int("handler", i+1), zap.String("name", h.name))

		if err := h.fn(ctx); err != nil {
			gs.logger.Error("Cleanup handler failed",
				zap.Int("handler", i+1),
				zap.String("name", h.name),
				zap.Error(err),
			)
		}
	}

	gs.logger.Info("Graceful shutdown completed")
}
