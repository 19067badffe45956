package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medport/scheduling-service/internal/api"
	"github.com/medport/scheduling-service/internal/config"
	"github.com/medport/scheduling-service/internal/db"
	redisclient "github.com/medport/scheduling-service/internal/redis"
	"github.com/medport/scheduling-service/internal/scheduling"
)

const version = "1.2.0"

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "api-server").Logger()
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configured")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	catalog := scheduling.NewPgCatalog(pgPool)
	store := scheduling.NewPgStore(pgPool)
	locker := redisclient.NewRedisCalendarLocker(rdb, cfg.BookingLockTTL)
	checker := scheduling.NewAvailabilityChecker(catalog)
	slotGen := scheduling.NewSlotGenerator(catalog, logger)
	lifecycle := scheduling.NewLifecycle(catalog, store, checker, locker, logger)

	router := api.NewRouter(api.RouterConfig{
		Catalog:       catalog,
		SlotGenerator: slotGen,
		Checker:       checker,
		Lifecycle:     lifecycle,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
		SlotQueryDays: cfg.SlotQueryDays,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
