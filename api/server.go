/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/session/*        Wallet session
  /api/policies/*       Plans, quotes, policy reads and writes
  /api/users/*          Per-address views
  /                     Plain-text banner with the endpoint listing

SECURITY NOTE:
  No authentication middleware. The write endpoints act on whatever
  account the server's session is bound to.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Session routes
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/connect", h.Connect)
			r.Post("/disconnect", h.Disconnect)
		})

		// Plan and policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/plans", h.ListPlans)
			r.Get("/plans/{id}", h.GetPlan)
			r.Post("/calculate-premium", h.CalculatePremium)
			r.Post("/purchase", h.Purchase)
			r.Get("/{id}", h.GetPolicy)
			r.Post("/{id}/renew", h.Renew)
			r.Post("/{id}/cancel", h.Cancel)
		})

		// Per-address routes
		r.Route("/users/{address}", func(r chi.Router) {
			r.Get("/policies", h.ListUserPolicies)
			r.Get("/stats", h.GetUserStats)
			r.Get("/receipts", h.ListUserReceipts)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(`Coverage Engine API

Session:
  GET  /api/session
  POST /api/session/connect
  POST /api/session/disconnect

Plans & policies:
  GET  /api/policies/plans
  GET  /api/policies/plans/{id}
  GET  /api/policies/{id}
  POST /api/policies/calculate-premium

Holder views:
  GET  /api/users/{address}/policies
  GET  /api/users/{address}/stats
  GET  /api/users/{address}/receipts

Writes:
  POST /api/policies/purchase
  POST /api/policies/{id}/renew
  POST /api/policies/{id}/cancel
`))
	})

	return r
}
