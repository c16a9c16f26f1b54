package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/agenda/internal/http/controllers/health"
)

// /healthz y /readyz son públicos.
func registerHealthRoutes(r chi.Router, d Deps) {
	c := health.NewController(d.Providers, d.Version)
	r.Get("/healthz", c.Healthz)
	r.Get("/readyz", c.Readyz)
}
