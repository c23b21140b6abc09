package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobsentry/api/internal/api"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	statusHandler := api.NewStatusHandler(app.governor, app.postingStore, app.logger)
	adminHandler := api.NewAdminHandler(app.finalizer, app.logger)

	r.Get("/healthz", statusHandler.GetHealth)
	r.Get("/status", statusHandler.GetStatus)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/postings/finalize", adminHandler.FinalizePostings)
	})

	return r
}
