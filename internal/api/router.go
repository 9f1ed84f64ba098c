package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface: job submission and inspection plus
// the event stream.
func NewRouter(jobs *JobHandler, events *EventsHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(slog.Default()))
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		r.Route("/projects/{projectID}/jobs", func(r chi.Router) {
			r.Post("/", jobs.CreateJob)
			r.Get("/latest", jobs.GetLatestJob)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobs.ListJobs)
			r.Get("/{jobID}", jobs.GetJob)
			r.Post("/{jobID}/cancel", jobs.CancelJob)
		})

		r.Get("/events", events.Stream)
	})

	return r
}
