// Package firebase implementa la capability Auth sobre Firebase Authentication
// (Identity Toolkit REST + verificación RS256 de ID tokens contra el JWKS de securetoken).
package firebase

import (
	"context"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/registry"
)

// Name nombre del provider en la config.
const Name = config.ProviderFirebase

func init() {
	registry.RegisterAuth(Name, func(ctx context.Context, cfg config.ProviderConfig) (capability.Auth, error) {
		return NewAuth(ctx, cfg.Firebase, cfg.Timeout())
	})
}
