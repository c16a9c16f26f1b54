// Package metrics define las métricas Prometheus del proceso. Están en un paquete
// aparte para que registry, identity y http puedan usarlas sin ciclos de import.
package metrics

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderInits construcciones de capabilities. result: ok | error.
	ProviderInits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_provider_initializations_total",
		Help: "Construcciones de capabilities por provider y resultado",
	}, []string{"capability", "provider", "result"})

	// TokenVerifications resultado de la verificación de bearer tokens.
	// outcome: ok | missing | malformed | invalid | unavailable
	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_token_verifications_total",
		Help: "Verificaciones de token por resultado",
	}, []string{"outcome"})

	// IdentityResolutions resultado del get-or-create de usuarios.
	// outcome: existing | refreshed | created | race_recovered | mirror_failed | failed
	IdentityResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_identity_resolutions_total",
		Help: "Resoluciones de identidad por resultado",
	}, []string{"outcome"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_http_requests_total",
		Help: "Requests HTTP procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agenda_http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register registra todos los collectors en reg (o el default si es nil) y devuelve
// el handler para /metrics. Llamadas repetidas devuelven el resultado de la primera.
func Register(reg *prometheus.Registry) (http.Handler, error) {
	registerOnce.Do(func() {
		var r prometheus.Registerer = prometheus.DefaultRegisterer
		if reg != nil {
			r = reg
		}
		for _, c := range collectors() {
			if err := r.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if errors.As(err, &are) {
					continue
				}
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	if reg != nil {
		return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

func collectors() []prometheus.Collector {
	return []prometheus.Collector{ProviderInits, TokenVerifications, IdentityResolutions, HTTPRequests, HTTPDuration}
}
