/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the front-desk UI
  6. Actor:      X-Actor header into the request context

ROUTE GROUPS:
  /api/bookings/*       Booking lifecycle, payments, audit
  /api/inventory/*      Capacity and availability
  /api/policies/*       Cancellation policies
  /api/admin/*          Operational triggers
  /api/scenarios/*      Demo data loaders
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. X-Actor is trusted as sent, so the API
  belongs behind a gateway that authenticates staff and channels.

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

	"github.com/warp/lodging-engine/booking"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list allows any origin.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderActor},
		MaxAge:         300,
	}))
	r.Use(actorMiddleware)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.Post("/", h.CreateBooking)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetBooking)
				r.Patch("/", h.ModifyBooking)
				r.Post("/submit", h.SubmitBooking)
				r.Post("/confirm", h.ConfirmBooking)
				r.Post("/check-in", h.CheckIn)
				r.Post("/check-out", h.CheckOut)
				r.Post("/cancel", h.CancelBooking)
				r.Post("/reject", h.RejectBooking)
				r.Post("/no-show", h.MarkNoShow)
				r.Get("/cancellation-fee", h.PreviewCancellationFee)
				r.Get("/audit", h.AuditTrail)
				r.Get("/balance", h.GetBalance)
				r.Get("/payments", h.ListPayments)
				r.Post("/payments", h.RecordPayment)
				r.Post("/payments/{paymentID}/refunds", h.IssueRefund)
			})
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/{roomTypeID}", h.GetAvailability)
			r.Put("/{roomTypeID}", h.SetCapacity)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.RunSweep)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(HeaderActor); actor != "" {
			r = r.WithContext(booking.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
