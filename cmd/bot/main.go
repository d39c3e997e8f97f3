package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/app"
	"github.com/KeremKalyoncu/medyan-bot/internal/config"
	"github.com/KeremKalyoncu/medyan-bot/internal/logger"
	"github.com/KeremKalyoncu/medyan-bot/internal/shutdown"
	"github.com/KeremKalyoncu/medyan-bot/internal/transport/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Format:   cfg.Logger.Format,
		FileName: cfg.Logger.File,
		Compress: true,
	})
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting media bot")

	api, err := telegram.NewBotAPI(cfg.Telegram.Token, cfg.Telegram.Debug, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Telegram", zap.Error(err))
	}

	container, err := app.NewContainer(cfg, api, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container.Start(ctx)

	botDone := make(chan error, 1)
	go func() {
		botDone <- container.Bot.Run(ctx)
		// The bot stopping on its own ends the process too.
		cancel()
	}()

	gs := shutdown.NewGracefulShutdown(zapLogger, cfg.Worker.ShutdownTimeout)
	gs.Register("bot", func(shutdownCtx context.Context) error {
		cancel()
		select {
		case err := <-botDone:
			return err
		case <-shutdownCtx.Done():
			return shutdownCtx.Err()
		}
	})
	gs.Register("container", container.Close)

	gs.Wait(ctx)
}
