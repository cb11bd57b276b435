package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"campaign-console/internal/observability"
)

// Router mounts the console API. timeout bounds each request and should
// exceed the CRM API client timeout.
func Router(h *ConsoleHandler, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Route("/v1/composers", func(r chi.Router) {
		r.Post("/", h.OpenComposer)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetComposer)
			r.Delete("/", h.CloseComposer)
			r.Put("/details", h.SetDetails)
			r.Patch("/rules/{field}", h.SetPredicate)
			r.Put("/logic", h.SetLogic)
			r.Get("/rows", h.GetRows)
			r.Put("/rows", h.SetRows)
			r.Post("/parse", h.ParseSegment)
			r.Post("/preview", h.Preview)
			r.Post("/suggestions", h.Suggestions)
			r.Post("/tags", h.Tags)
			r.Post("/create", h.Create)
		})
	})
	r.Get("/v1/history", h.History)
	r.Post("/v1/history/refresh", h.RefreshHistory)
	r.Post("/v1/history/{id}/send", h.SendCampaign)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
