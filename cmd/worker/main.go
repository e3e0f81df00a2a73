package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"invigilation/internal/backend"
	"invigilation/internal/config"
	"invigilation/internal/logger"
	"invigilation/internal/notify"
)

// Worker consumes allocations.generated messages and mails each allocated
// faculty their duty.
func main() {
	cfg := config.Load()
	logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	if cfg.StoreBackend != "postgres" || cfg.QueueBackend != "redis" {
		logger.Fatal().
			Str("store", cfg.StoreBackend).
			Str("queue", cfg.QueueBackend).
			Msg("worker needs STORE_BACKEND=postgres and QUEUE_BACKEND=redis; in-memory backends dispatch inside the api process")
	}

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("backend init failed")
	}
	defer b.Close()

	mailer, err := notify.NewMailer(cfg.MailBackend, cfg.SendgridAPIKey, cfg.MailFrom, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailer init failed")
	}

	if err := notify.NewDispatcher(b.Allocations, b.Registry, mailer).Run(ctx, b.Queue); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
	}
}
