package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the HTTP surface.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLog(a.Log))
	r.Use(Recovery(a.Log))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", a.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/clients", func(r chi.Router) {
			r.Post("/", a.CreateClient)
			r.Get("/", a.ListClients)
			// static segments before {id}
			r.Post("/link-self", a.LinkSelf)
			r.Get("/me", a.Me)
			r.Put("/{id}", a.UpdateClient)
			r.Delete("/{id}", a.DeleteClient)
			r.Post("/{id}/link", a.LinkClient)
		})

		r.Post("/milking_events", a.CreateMilkingEvent)
		r.Get("/milking_events", a.ListMilkingEvents)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", a.CreateOrder)
			r.Get("/", a.ListOrders)
			r.Put("/{id}", a.UpdateOrder)
			r.Delete("/{id}", a.DeleteOrder)
			r.Patch("/{id}/confirm", a.ConfirmOrder)
		})

		r.Post("/payments", a.CreatePayment)
		r.Get("/payments", a.ListPayments)

		r.Post("/webhook/payment", a.PaymentWebhook)
	})
	return r
}
