package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Scheduler Scheduler
	Logger    *zap.Logger
	Checks    []Check
	Env       string
	Version   string

	// Location interprets date-only list bounds. Defaults to UTC.
	Location *time.Location
	// JWTSecret, when set, makes a signed bearer token mandatory on
	// mutating routes.
	JWTSecret string
	// RateLimitPerMinute caps mutating requests per client; 0 disables it.
	RateLimitPerMinute int
	Now                func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := &handlers{svc: cfg.Scheduler, log: cfg.Logger, loc: cfg.Location, now: cfg.Now}
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Read endpoints
	r.Get("/appointments", h.listAppointments)
	r.Get("/appointments/{id}", h.getAppointment)
	r.Get("/resources/{id}/next-slot", h.nextSlot)

	// Mutating endpoints
	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware([]byte(cfg.JWTSecret)))
		if cfg.RateLimitPerMinute > 0 {
			r.Use(RateLimitMiddleware(cfg.RateLimitPerMinute, cfg.Logger))
		}

		r.Post("/appointments", h.createAppointment)
		r.Post("/appointments/{id}/reschedule", h.rescheduleAppointment)
		r.Post("/appointments/{id}/cancel", h.cancelAppointment)
		r.Post("/appointments/{id}/status", h.transitionStatus)
	})

	return r
}
