// Package router arma el árbol de rutas HTTP y la cadena de middlewares.
package router

import (
	"context"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/http/controllers/files"
	httperrors "github.com/dropDatabas3/agenda/internal/http/errors"
	mw "github.com/dropDatabas3/agenda/internal/http/middlewares"
	"github.com/dropDatabas3/agenda/internal/rate"
)

// Providers capabilities que consumen los controllers (normalmente *registry.Registry).
type Providers interface {
	Database(ctx context.Context) (capability.Database, error)
	Storage(ctx context.Context) (capability.Storage, error)
}

// Deps dependencias del router.
type Deps struct {
	Providers Providers
	Auth      mw.Authenticator

	// Opcionales
	Limiter     rate.Limiter
	Metrics     http.Handler
	Files       files.Opener
	CORSOrigins []string
	Version     string

	// proxies cuyo X-Forwarded-For se respeta para el rate limit
	TrustedProxies []netip.Prefix
}

// paths sin rate limit
var unlimited = []string{"/healthz", "/readyz", "/metrics"}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithCORS(d.CORSOrigins),
		mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.Limiter, Whitelist: unlimited, TrustedProxies: d.TrustedProxies}),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.New(http.StatusMethodNotAllowed, "MethodNotAllowed", "Method not allowed for this route."))
	})

	registerHealthRoutes(r, d)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Files != nil {
		registerFileRoutes(r, d)
	}

	r.Route("/v1", func(v1 chi.Router) {
		registerEventRoutes(v1, d)
		registerMeRoutes(v1, d)
	})

	return r
}
