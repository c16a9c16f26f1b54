package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/agenda/internal/http/controllers/me"
	mw "github.com/dropDatabas3/agenda/internal/http/middlewares"
)

func registerMeRoutes(r chi.Router, d Deps) {
	c := me.NewController(d.Providers)

	r.Group(func(priv chi.Router) {
		priv.Use(mw.RequireAuth(d.Auth))
		priv.Get("/me", c.Get)
		priv.Get("/me/profile", c.GetProfile)
		priv.Put("/me/profile", c.UpdateProfile)
	})
}
