package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medport/scheduling-service/internal/config"
	"github.com/medport/scheduling-service/internal/db"
	"github.com/medport/scheduling-service/internal/scheduling"
)

// notify-worker drains the patient-notification bookkeeping written by the
// appointment lifecycle. Actual delivery (SMS, portal message) belongs to
// the surrounding portal; this worker claims pending rows and marks them
// dispatched once handed off.
func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "notify-worker").Logger()
	logger.Info().Msg("notify-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.NotifyInterval).Msg("configured")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	store := scheduling.NewPgStore(pgPool)

	runOnce(rootCtx, store, cfg.NotifyBatchSize, logger)

	ticker := time.NewTicker(cfg.NotifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping notify worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, store, cfg.NotifyBatchSize, logger)
		}
	}
}

func runOnce(ctx context.Context, store scheduling.Store, batchSize int, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	pending, err := store.ClaimPendingNotifications(runCtx, batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("claim pending notifications")
		return
	}

	dispatched := 0
	for _, n := range pending {
		if err := store.MarkNotificationDispatched(runCtx, n.ID); err != nil {
			logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark dispatched")
			continue
		}
		dispatched++
	}

	logger.Info().
		Int("claimed", len(pending)).
		Int("dispatched", dispatched).
		Dur("elapsed", time.Since(start)).
		Msg("notification run complete")
}
