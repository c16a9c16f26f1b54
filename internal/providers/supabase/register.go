// Package supabase implementa las cuatro capabilities sobre Supabase:
// GoTrue (auth), Postgres vía pgx (database), Storage y Edge Functions (REST).
package supabase

import (
	"context"
	"time"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/providers/rest"
	"github.com/dropDatabas3/agenda/internal/registry"
)

// Name nombre del provider en la config.
const Name = config.ProviderSupabase

func init() {
	registry.RegisterAuth(Name, func(_ context.Context, cfg config.ProviderConfig) (capability.Auth, error) {
		return NewAuth(cfg.Supabase, cfg.Timeout())
	})
	registry.RegisterDatabase(Name, func(ctx context.Context, cfg config.ProviderConfig) (capability.Database, error) {
		return OpenDatabase(ctx, cfg.Supabase)
	})
	registry.RegisterStorage(Name, func(_ context.Context, cfg config.ProviderConfig) (capability.Storage, error) {
		return NewStorage(cfg.Supabase, cfg.DefaultBucket, cfg.Timeout())
	})
	registry.RegisterFunctions(Name, func(_ context.Context, cfg config.ProviderConfig) (capability.Functions, error) {
		return NewFunctions(cfg.Supabase, cfg.Timeout())
	})
}

// serviceClient cliente REST autenticado con la service role key.
func serviceClient(cfg config.SupabaseConfig, timeout time.Duration) (*rest.Client, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "supabase url and service_role_key are required")
	}
	return rest.New(cfg.URL, timeout, map[string]string{
		"apikey":        cfg.ServiceRoleKey,
		"Authorization": "Bearer " + cfg.ServiceRoleKey,
	}), nil
}
