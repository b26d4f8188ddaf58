package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/salon-scheduler/internal/actions"
	"github.com/wolfman30/salon-scheduler/internal/dayrate"
	httpmiddleware "github.com/wolfman30/salon-scheduler/internal/http/middleware"
	"github.com/wolfman30/salon-scheduler/internal/http/response"
	"github.com/wolfman30/salon-scheduler/internal/possync"
	"github.com/wolfman30/salon-scheduler/internal/scheduling"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Appointments       *scheduling.Handler
	Sync               *possync.Handler
	DayRate            *dayrate.Handler
	Actions            *actions.Handler
	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
	CORSAllowedOrigins []string
	AuthSecret         string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a chi router with every tenant route under /api/v1/orgs/{orgID}.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1/orgs/{orgID}", func(api chi.Router) {
		if cfg.RateLimitPerSecond > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}
		api.Use(httpmiddleware.Identity(cfg.AuthSecret))
		api.Use(requireOrgID)

		if cfg.Appointments != nil {
			api.Mount("/appointments", cfg.Appointments.Routes())
		}
		if cfg.Sync != nil {
			api.Mount("/sync", cfg.Sync.Routes())
		}
		if cfg.DayRate != nil {
			cfg.DayRate.RegisterRoutes(api)
		}
		if cfg.Actions != nil {
			api.Mount("/actions", cfg.Actions.Routes())
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			response.WriteJSON(w, http.StatusServiceUnavailable, response.Envelope{
				ErrorReason: "dependency_unavailable",
				Data:        status,
			})
			return
		}
		response.OK(w, http.StatusOK, response.Envelope{Data: status})
	}
}
