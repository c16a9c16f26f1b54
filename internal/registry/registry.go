// Package registry mantiene una instancia por capability (auth, database, storage,
// functions), construida de forma lazy según la config de providers.
//
// La construcción está protegida por un guard por capability (singleflight +
// double-check): bajo acceso concurrente se construye una sola instancia y todos
// los callers observan la misma.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/metrics"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
)

// ErrNotImplemented matchea (errors.Is) cualquier error de selección sin factory.
var ErrNotImplemented error = &capability.Error{Code: capability.CodeNotImplemented}

// Registry holder de capabilities. Seguro para uso concurrente.
type Registry struct {
	cfg config.ProviderConfig

	// instances capability → instancia construida
	instances sync.Map

	// sf evita construcciones paralelas de la misma capability
	sf singleflight.Group

	// resetMu serializa Reset contra sí mismo
	resetMu sync.Mutex
}

// New crea un registry sobre una copia de cfg. No construye nada todavía.
func New(cfg config.ProviderConfig) *Registry {
	return &Registry{cfg: cfg}
}

// Config devuelve la selección de providers (copia).
func (r *Registry) Config() config.ProviderConfig { return r.cfg }

// Auth devuelve la capability de autenticación, construyéndola si hace falta.
func (r *Registry) Auth(ctx context.Context) (capability.Auth, error) {
	return get(ctx, r, CapAuth, r.cfg.Auth, func(ctx context.Context, f any) (capability.Auth, error) {
		return f.(AuthFactory)(ctx, r.cfg)
	})
}

// Database devuelve la capability de base de datos.
func (r *Registry) Database(ctx context.Context) (capability.Database, error) {
	return get(ctx, r, CapDatabase, r.cfg.Database, func(ctx context.Context, f any) (capability.Database, error) {
		return f.(DatabaseFactory)(ctx, r.cfg)
	})
}

// Storage devuelve la capability de almacenamiento.
func (r *Registry) Storage(ctx context.Context) (capability.Storage, error) {
	return get(ctx, r, CapStorage, r.cfg.Storage, func(ctx context.Context, f any) (capability.Storage, error) {
		return f.(StorageFactory)(ctx, r.cfg)
	})
}

// Functions devuelve la capability de funciones remotas.
func (r *Registry) Functions(ctx context.Context) (capability.Functions, error) {
	return get(ctx, r, CapFunctions, r.cfg.Functions, func(ctx context.Context, f any) (capability.Functions, error) {
		return f.(FunctionsFactory)(ctx, r.cfg)
	})
}

func get[T any](ctx context.Context, r *Registry, capName, provider string, build func(context.Context, any) (T, error)) (T, error) {
	var zero T

	if v, ok := r.instances.Load(capName); ok {
		return v.(T), nil
	}

	res, err, _ := r.sf.Do(capName, func() (any, error) {
		// Double-check dentro del flight
		if v, ok := r.instances.Load(capName); ok {
			return v, nil
		}

		f, ok := lookup(capName, provider)
		if !ok {
			metrics.ProviderInits.WithLabelValues(capName, provider, "error").Inc()
			return nil, capability.NotImplemented(capName, providerLabel(provider))
		}

		// La construcción no depende de la cancelación del primer caller:
		// el resto de callers concurrentes esperan este mismo resultado.
		bctx := context.WithoutCancel(ctx)
		start := time.Now()
		inst, err := build(bctx, f)
		if err != nil {
			metrics.ProviderInits.WithLabelValues(capName, provider, "error").Inc()
			logger.From(ctx).Error("capability init failed",
				logger.Capability(capName), logger.Provider(provider), logger.Err(err))
			return nil, capability.Normalize(err, fmt.Sprintf("%s init failed for %s", capName, provider))
		}

		r.instances.Store(capName, inst)
		metrics.ProviderInits.WithLabelValues(capName, provider, "ok").Inc()
		logger.From(ctx).Info("capability initialized",
			logger.Capability(capName), logger.Provider(provider),
			zap.Duration("took", time.Since(start)))
		return inst, nil
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

func providerLabel(p string) string {
	if p == "" {
		return "<unset>"
	}
	return p
}

// Validate verifica que toda capability seleccionada tenga factory registrada.
// Pensado para el arranque: falla antes de servir tráfico.
func (r *Registry) Validate() error {
	var errs []error
	for _, sel := range r.selections() {
		if _, ok := lookup(sel.capName, sel.provider); !ok {
			errs = append(errs, capability.NotImplemented(sel.capName, providerLabel(sel.provider)))
		}
	}
	return errors.Join(errs...)
}

// Warm construye todas las capabilities seleccionadas. Devuelve el primer error.
func (r *Registry) Warm(ctx context.Context) error {
	if _, err := r.Auth(ctx); err != nil {
		return err
	}
	if _, err := r.Database(ctx); err != nil {
		return err
	}
	if _, err := r.Storage(ctx); err != nil {
		return err
	}
	if _, err := r.Functions(ctx); err != nil {
		return err
	}
	return nil
}

type selection struct{ capName, provider string }

func (r *Registry) selections() []selection {
	return []selection{
		{CapAuth, r.cfg.Auth},
		{CapDatabase, r.cfg.Database},
		{CapStorage, r.cfg.Storage},
		{CapFunctions, r.cfg.Functions},
	}
}

// ─── Overrides (tests) ───

// OverrideAuth instala una instancia ya construida (p. ej. un doble de test).
func (r *Registry) OverrideAuth(a capability.Auth) { r.instances.Store(CapAuth, a) }

// OverrideDatabase instala una instancia de Database ya construida.
func (r *Registry) OverrideDatabase(db capability.Database) { r.instances.Store(CapDatabase, db) }

// OverrideStorage instala una instancia de Storage ya construida.
func (r *Registry) OverrideStorage(s capability.Storage) { r.instances.Store(CapStorage, s) }

// OverrideFunctions instala una instancia de Functions ya construida.
func (r *Registry) OverrideFunctions(f capability.Functions) { r.instances.Store(CapFunctions, f) }

// Reset descarta todas las instancias, cerrando las que implementan io.Closer.
// Solo para aislamiento entre tests; nunca en el path de un request.
func (r *Registry) Reset() error {
	r.resetMu.Lock()
	defer r.resetMu.Unlock()

	var errs []error
	r.instances.Range(func(key, val any) bool {
		r.instances.Delete(key)
		if c, ok := val.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", key, err))
			}
		}
		return true
	})
	return errors.Join(errs...)
}

// Close libera los recursos de las capabilities construidas.
func (r *Registry) Close() error { return r.Reset() }

// ─── Registry de proceso ───

var (
	defaultMu  sync.RWMutex
	defaultReg *Registry
)

// Init crea el registry de proceso. Llamar una vez en main, después de validar la config.
func Init(cfg config.ProviderConfig) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultReg = New(cfg)
	return defaultReg
}

// Default devuelve el registry de proceso. Panic si Init no fue llamado.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultReg == nil {
		panic("registry: Default() called before Init()")
	}
	return defaultReg
}

// ResetDefault cierra y descarta el registry de proceso (teardown de tests).
func ResetDefault() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultReg == nil {
		return nil
	}
	err := defaultReg.Reset()
	defaultReg = nil
	return err
}
