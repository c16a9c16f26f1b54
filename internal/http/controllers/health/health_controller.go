// Package health contiene el controller de health checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/http/helpers"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
)

const pingTimeout = 2 * time.Second

// DatabaseProvider de dónde sale la capability a chequear.
type DatabaseProvider interface {
	Database(ctx context.Context) (capability.Database, error)
}

// Response cuerpo de /healthz y /readyz.
type Response struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// Controller maneja /healthz y /readyz.
type Controller struct {
	db      DatabaseProvider
	version string
}

func NewController(db DatabaseProvider, version string) *Controller {
	return &Controller{db: db, version: version}
}

// Healthz liveness: el proceso responde.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, Response{Status: "ok", Version: c.version})
}

// Readyz readiness: la capability de base de datos se construye y, si
// implementa Pinger, responde al ping.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Op("HealthController.Readyz"))

	resp := Response{Status: "ready", Version: c.version, Components: map[string]string{}}
	status := http.StatusOK

	db, err := c.db.Database(ctx)
	if err == nil {
		if p, ok := db.(capability.Pinger); ok {
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err = p.Ping(pctx)
			cancel()
		}
	}
	if err != nil {
		log.Warn("readiness check failed", logger.Capability("database"), logger.Err(err))
		resp.Status = "unavailable"
		resp.Components["database"] = capability.CodeOf(err)
		status = http.StatusServiceUnavailable
	} else {
		resp.Components["database"] = "ok"
	}

	helpers.WriteJSON(w, status, resp)
}
