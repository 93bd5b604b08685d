package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/appointment"
	"github.com/hackgods/session-booking/internal/auth"
	"github.com/hackgods/session-booking/internal/catalog"
	redisclient "github.com/hackgods/session-booking/internal/redis"
)

type RouterConfig struct {
	Service *appointment.Service
	Catalog *catalog.Static
	Tokens  *auth.TokenManager
	Limiter redisclient.Limiter // nil disables rate limiting
	Checks  []DependencyCheck
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	svc, cat, logger := cfg.Service, cfg.Catalog, cfg.Logger

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/services", listServicesHandler(cat))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Get("/appointments/available-times", availableTimesHandler(svc, cat, logger))
		r.With(RateLimitMiddleware(cfg.Limiter, "book", cfg.Logger)).Post("/appointments", createAppointmentHandler(svc, cat, logger))
		r.Get("/appointments/mine", listMineHandler(svc, logger))
		r.Get("/appointments/{id}", getAppointmentHandler(svc, logger))
		r.Patch("/appointments/{id}/cancel", cancelAppointmentHandler(svc, logger))

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/appointments", listAllHandler(svc, logger))
			r.Patch("/appointments/{id}", updateStatusHandler(svc, logger))
			r.Get("/dashboard", dashboardHandler(svc, logger))
		})
	})

	return r
}
