/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/requests/*   Request lifecycle (submit, decide, cancel)
  /api/employees/*  Per-employee views (requests, balances, journal)
  /api/conflicts    Team overlap report
  /api/admin/*      Allocation, carry-forward, escalation sweep

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Request lifecycle
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/pending", h.ListPendingRequests)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/decide", h.DecideRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		// Per-employee views
		r.Route("/employees", func(r chi.Router) {
			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/ledger", h.GetLedger)
		})

		// Team overlap
		r.Get("/conflicts", h.GetConflicts)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/allocate", h.TriggerAllocation)
			r.Post("/carry-forward", h.TriggerCarryForward)
			r.Post("/escalations", h.TriggerEscalations)
		})
	})

	return r
}
