// Package memory implementa las cuatro capabilities en memoria del proceso.
// Sirve para desarrollo local y como doble de test; no persiste nada.
package memory

import (
	"context"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/registry"
)

// Name nombre del provider en la config.
const Name = config.ProviderMemory

func init() {
	registry.RegisterAuth(Name, func(_ context.Context, cfg config.ProviderConfig) (capability.Auth, error) {
		return NewAuth([]byte(cfg.Memory.JWTSecret), config.Dur(cfg.Memory.TokenTTL, 0))
	})
	registry.RegisterDatabase(Name, func(context.Context, config.ProviderConfig) (capability.Database, error) {
		return NewDatabase(), nil
	})
	registry.RegisterStorage(Name, func(_ context.Context, cfg config.ProviderConfig) (capability.Storage, error) {
		return NewStorage(cfg.DefaultBucket), nil
	})
	registry.RegisterFunctions(Name, func(context.Context, config.ProviderConfig) (capability.Functions, error) {
		return NewFunctions(), nil
	})
}
