/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.

MIDDLEWARE STACK:
  1. RequestID:  unique ID per request, echoed in 500 logs
  2. RealIP:     honours X-Forwarded-For for the reset cooldown key
  3. Logger:     request logging
  4. Recoverer:  panic recovery (500 instead of crash)
  5. CORS:       cross-origin requests for the frontend

ROUTE GROUPS:
  Every route is served at the root and mirrored under /api.

  Public:
    GET    /healthz
    POST   /auth/tokens                  login
    POST   /auth/resets                  request a password reset
    POST   /auth/resets/{token}          complete a reset or activation

  Bearer token required:
    /users          registration, profiles, role changes, self-service
    /transactions   purchases, adjustments, redemptions, flags
    /events         events, organizers, guests, awards
    /promotions     promotion CRUD
    /ai/chat        help-desk assistant

SEE ALSO:
  - handlers.go:   handler context and helpers
  - middleware.go: Authenticate
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	routes := func(r chi.Router) {
		r.Get("/healthz", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/tokens", h.Login)
			r.Post("/resets", h.RequestReset)
			r.Post("/resets/{token}", h.CompleteReset)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Route("/users", func(r chi.Router) {
				r.Post("/", h.RegisterUser)
				r.Get("/", h.ListUsers)
				r.Get("/me", h.GetMe)
				r.Patch("/me", h.UpdateMe)
				r.Patch("/me/password", h.ChangePassword)
				r.Get("/me/transactions", h.MyTransactions)
				r.Post("/me/transactions", h.RequestRedemption)
				r.Get("/{id}", h.GetUser)
				r.Patch("/{id}", h.UpdateUser)
				r.Post("/{id}/transactions", h.Transfer)
				r.Get("/{id}/audit", h.AuditUser)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", h.CreateTransaction)
				r.Get("/", h.ListTransactions)
				r.Get("/{id}", h.GetTransaction)
				r.Patch("/{id}/suspicious", h.SetSuspicious)
				r.Patch("/{id}/processed", h.ProcessRedemption)
			})

			r.Route("/events", func(r chi.Router) {
				r.Post("/", h.CreateEvent)
				r.Get("/", h.ListEvents)
				r.Get("/{id}", h.GetEvent)
				r.Patch("/{id}", h.UpdateEvent)
				r.Delete("/{id}", h.DeleteEvent)
				r.Post("/{id}/organizers", h.AddOrganizer)
				r.Delete("/{id}/organizers/{userId}", h.RemoveOrganizer)
				r.Post("/{id}/guests", h.AddGuest)
				r.Get("/{id}/guests/me", h.GetRSVP)
				r.Post("/{id}/guests/me", h.RSVP)
				r.Delete("/{id}/guests/me", h.CancelRSVP)
				r.Delete("/{id}/guests/{userId}", h.RemoveGuest)
				r.Post("/{id}/transactions", h.AwardEvent)
			})

			r.Route("/promotions", func(r chi.Router) {
				r.Post("/", h.CreatePromotion)
				r.Get("/", h.ListPromotions)
				r.Get("/{id}", h.GetPromotion)
				r.Patch("/{id}", h.UpdatePromotion)
				r.Delete("/{id}", h.DeletePromotion)
			})

			r.Post("/ai/chat", h.Chat)
		})
	}

	routes(r)
	r.Route("/api", routes)

	return r
}
