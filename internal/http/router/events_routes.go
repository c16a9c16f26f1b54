package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/agenda/internal/http/controllers/events"
	"github.com/dropDatabas3/agenda/internal/http/controllers/files"
	mw "github.com/dropDatabas3/agenda/internal/http/middlewares"
)

// Lectura de eventos: auth opcional (mine=1 la exige en el controller).
// Escritura: auth requerida.
func registerEventRoutes(r chi.Router, d Deps) {
	c := events.NewController(d.Providers)

	r.Group(func(pub chi.Router) {
		pub.Use(mw.OptionalAuth(d.Auth))
		pub.Get("/events", c.List)
		pub.Get("/events/{id}", c.Get)
	})

	r.Group(func(priv chi.Router) {
		priv.Use(mw.RequireAuth(d.Auth))
		priv.Post("/events", c.Create)
		priv.Post("/events/{id}/image", c.UploadImage)
	})
}

func registerFileRoutes(r chi.Router, d Deps) {
	c := files.NewController(d.Files)
	r.Get("/files/{bucket}/*", c.Get)
}
