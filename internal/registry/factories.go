package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
)

// Nombres de capability, usados en errores, logs y métricas.
const (
	CapAuth      = "auth"
	CapDatabase  = "database"
	CapStorage   = "storage"
	CapFunctions = "functions"
)

// Factories. Reciben la config completa de providers; cada provider lee su bloque.
type (
	AuthFactory      func(ctx context.Context, cfg config.ProviderConfig) (capability.Auth, error)
	DatabaseFactory  func(ctx context.Context, cfg config.ProviderConfig) (capability.Database, error)
	StorageFactory   func(ctx context.Context, cfg config.ProviderConfig) (capability.Storage, error)
	FunctionsFactory func(ctx context.Context, cfg config.ProviderConfig) (capability.Functions, error)
)

// ─── Registro global de factories ───
// Cada paquete de provider se registra en su init().

var (
	factoriesMu sync.RWMutex
	factories   = map[string]map[string]any{
		CapAuth:      {},
		CapDatabase:  {},
		CapStorage:   {},
		CapFunctions: {},
	}
)

func register(capName, provider string, f any) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[capName][provider]; exists {
		panic(fmt.Sprintf("registry: %s provider %q already registered", capName, provider))
	}
	factories[capName][provider] = f
}

func lookup(capName, provider string) (any, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[capName][provider]
	return f, ok
}

// RegisterAuth registra una factory de Auth. Panic si el nombre ya existe.
func RegisterAuth(provider string, f AuthFactory) { register(CapAuth, provider, f) }

// RegisterDatabase registra una factory de Database.
func RegisterDatabase(provider string, f DatabaseFactory) { register(CapDatabase, provider, f) }

// RegisterStorage registra una factory de Storage.
func RegisterStorage(provider string, f StorageFactory) { register(CapStorage, provider, f) }

// RegisterFunctions registra una factory de Functions.
func RegisterFunctions(provider string, f FunctionsFactory) { register(CapFunctions, provider, f) }

// Providers lista los providers registrados para una capability, ordenados.
func Providers(capName string) []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories[capName]))
	for name := range factories[capName] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
