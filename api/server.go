/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. Logger:       Request logging
  3. Recoverer:    Panic recovery (500 instead of crash)
  4. CORS:         Cross-origin requests for frontends
  5. Authenticate: Bearer token -> caller identity (optional per request)

ROUTE GROUPS:
  /healthz          Liveness
  /metrics          Prometheus (when configured)
  /api/admin        Registry admin
  /api/factors      Emission factors
  /api/activities   Log/delete (authenticated)
  /api/delegates    Grants (authenticated)
  /api/accounts     Per-account queries
  /api/categories   Category rollups
  /api/stats        Global counters
  /api/audit        Audit trail

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures cross-cutting concerns of the router.
type RouterOptions struct {
	Auth        AuthConfig
	CORSOrigins []string
	// Metrics, if set, is served at /metrics.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(opts.Auth))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/", h.GetAdmin)
			r.Put("/", h.SetAdmin)
		})

		r.Route("/factors", func(r chi.Router) {
			r.Get("/", h.ListFactors)
			r.Get("/{category}", h.GetFactor)
			r.Put("/{category}", h.UpdateFactor)
		})

		r.Route("/activities", func(r chi.Router) {
			r.Post("/", h.LogActivity)
			r.Delete("/{seq}", h.DeleteActivity)
		})

		r.Route("/delegates", func(r chi.Router) {
			r.Post("/", h.AddDelegate)
			r.Delete("/{delegate}", h.RemoveDelegate)
		})

		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Get("/footprint", h.GetFootprint)
			r.Get("/daily/{day}", h.GetDailyFootprint)
			r.Get("/daily-average", h.GetAverageDailyFootprint)
			r.Get("/activities", h.GetRecentActivities)
			r.Get("/activities/{seq}", h.GetActivity)
			r.Get("/sequence", h.GetSequence)
			r.Get("/delegates/{delegate}", h.GetDelegate)
			r.Get("/access", h.GetAccess)
		})

		r.Get("/categories/{category}/stats", h.GetCategoryStats)
		r.Get("/stats", h.GetStats)
		r.Get("/audit", h.GetAudit)
	})

	return r
}
