// Package sqlite implementa la capability Database sobre SQLite (modernc, sin cgo).
package sqlite

import (
	"context"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/registry"
)

// Name nombre del provider en la config.
const Name = config.ProviderSQLite

func init() {
	registry.RegisterDatabase(Name, func(ctx context.Context, cfg config.ProviderConfig) (capability.Database, error) {
		return Open(ctx, cfg.SQLite.Path)
	})
}
