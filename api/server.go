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
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a finance dashboard
  5. Actor:      X-Actor-ID header into the request context

ROUTE GROUPS:
  /api/students/*       Student ledgers, transactions, invoices
  /api/transactions/*   Voiding
  /api/verification/*   Scheduled opening-balance sweeps
  /api/scenarios/*      Demo scenarios
  /api/health           Liveness

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
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))
	r.Use(withActor)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}/opening-balance", h.GetOpeningBalance)
			r.Post("/{id}/opening-balance/verify", h.VerifyOpeningBalance)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Get("/{id}/reconciliation", h.GetReconciliation)
			r.Post("/{id}/transactions", h.RecordTransaction)
			r.Post("/{id}/invoices", h.RecordInvoice)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/{id}/void", h.VoidTransaction)
		})

		// Verification routes
		r.Route("/verification", func(r chi.Router) {
			r.Get("/runs", h.ListVerificationRuns)
			r.Post("/runs", h.TriggerVerification)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
