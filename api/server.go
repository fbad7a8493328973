/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Timeout:    Per-request deadline, propagated to the calculator's context
  5. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/deals/*          Per-deal recalculation and commission reads
  /api/recalculate      Batch recalculation
  /api/sweep/last       Periodic sweep status
  /api/payplans/*       Pay plan management
  /api/people/*         Pay plan assignment
  /api/scenarios/*      Demo scenarios
  /api/health           Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/commissiond/serve.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes NewRouter. Zero values select defaults.
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = defaultOrigins
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Deal routes
		r.Route("/deals", func(r chi.Router) {
			r.Post("/{id}/recalculate", h.RecalculateDeal)
			r.Get("/{id}/commissions", h.GetDealCommissions)
		})

		r.Post("/recalculate", h.RecalculateBatch)
		r.Get("/sweep/last", h.LastSweep)

		// Pay plan routes
		r.Route("/payplans", func(r chi.Router) {
			r.Get("/", h.ListPayPlans)
			r.Post("/", h.CreatePayPlan)
		})

		r.Route("/people", func(r chi.Router) {
			r.Post("/{id}/payplan", h.AssignPayPlan)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
