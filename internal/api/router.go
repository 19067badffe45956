package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medport/scheduling-service/internal/scheduling"
)

type RouterConfig struct {
	Catalog       scheduling.Catalog
	SlotGenerator *scheduling.SlotGenerator
	Checker       *scheduling.AvailabilityChecker
	Lifecycle     *scheduling.Lifecycle
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Logger        zerolog.Logger
	Env           string
	Version       string
	SlotQueryDays int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/providers/{id}/slots", slotsHandler(cfg.Catalog, cfg.SlotGenerator, cfg.SlotQueryDays))
	r.Post("/availability/check", availabilityHandler(cfg.Checker))

	r.Post("/appointments", bookHandler(cfg.Lifecycle))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Lifecycle))
	r.Put("/appointments/{id}", updateHandler(cfg.Lifecycle))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Lifecycle))
	r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Lifecycle))

	return r
}
