package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured.
// Mutating routes require the bearer token when one is configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	// Public liveness probe
	r.Get("/healthz", h.Health)

	r.Route("/ui", func(r chi.Router) {
		r.Use(SessionMiddleware(h.registry))
		if h.apiKey != "" {
			r.Use(AuthMiddleware(h.apiKey))
		}

		r.Get("/statuses", h.Statuses)

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", h.ListLeads)
			r.Post("/", h.CreateLead)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.LeadDetail)
				r.Patch("/", h.UpdateLead)
				r.Delete("/", h.DeleteLead)

				r.Put("/form", h.SaveForm)
				r.Delete("/form", h.DeleteForm)

				r.Put("/responses/{rid}/answers/{qid}", h.EditAnswer)
				r.Post("/responses/{rid}/save", h.SaveResponse)
				r.Post("/responses/{rid}/validate", h.ValidateResponse)
			})
		})

		r.Route("/visas", func(r chi.Router) {
			r.Get("/", h.ListVisas)
			r.Get("/{code}", h.GetVisa)
			r.Post("/{code}/start", h.StartVisa)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.PutSettings)
			r.Put("/extra-config", h.PutExtraConfig)
		})
	})

	return r
}
