package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Nombres de providers soportados.
const (
	ProviderFirebase = "firebase"
	ProviderSupabase = "supabase"
	ProviderSQLite   = "sqlite"
	ProviderLocal    = "local"
	ProviderMemory   = "memory"
)

// Allowed providers por capability. Cualquier otro nombre se rechaza en Validate.
var allowedProviders = map[string][]string{
	"auth":      {ProviderFirebase, ProviderSupabase, ProviderMemory},
	"database":  {ProviderSupabase, ProviderSQLite, ProviderMemory},
	"storage":   {ProviderSupabase, ProviderLocal, ProviderMemory},
	"functions": {ProviderSupabase, ProviderMemory},
}

// Config raíz. Se lee una vez al arrancar (YAML + overrides de entorno) y no se re-lee.
type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env" env:"APP_ENV"`
		Name    string `yaml:"name" env:"APP_NAME"`
		Version string `yaml:"version" env:"APP_VERSION"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr" env:"SERVER_ADDR"`
		ReadTimeout        string   `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
		WriteTimeout       string   `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"SERVER_CORS_ALLOWED_ORIGINS"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Telemetry struct {
		OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	} `yaml:"telemetry"`

	Rate struct {
		Enabled     bool   `yaml:"enabled" env:"RATE_ENABLED"`
		Window      string `yaml:"window" env:"RATE_WINDOW"`
		MaxRequests int    `yaml:"max_requests" env:"RATE_MAX_REQUESTS"`
		// RedisAddr vacío = limiter en memoria.
		RedisAddr   string `yaml:"redis_addr" env:"RATE_REDIS_ADDR"`
		RedisPrefix string `yaml:"redis_prefix" env:"RATE_REDIS_PREFIX"`
		// IPs o CIDRs de proxies; vacío = X-Forwarded-For se ignora.
		TrustedProxies []string `yaml:"trusted_proxies" env:"RATE_TRUSTED_PROXIES"`
	} `yaml:"rate"`

	Providers ProviderConfig `yaml:"providers"`
}

// ProviderConfig selección de provider por capability más sus credenciales.
// Inmutable después de construir el registry.
type ProviderConfig struct {
	Auth      string `yaml:"auth" env:"AUTH_PROVIDER"`
	Database  string `yaml:"database" env:"DATABASE_PROVIDER"`
	Storage   string `yaml:"storage" env:"STORAGE_PROVIDER"`
	Functions string `yaml:"functions" env:"FUNCTIONS_PROVIDER"`

	DefaultBucket string `yaml:"default_bucket" env:"STORAGE_DEFAULT_BUCKET"`
	// HTTPTimeout timeout de los clientes HTTP hacia los providers.
	HTTPTimeout string `yaml:"http_timeout" env:"PROVIDER_HTTP_TIMEOUT"`

	Firebase     FirebaseConfig     `yaml:"firebase"`
	Supabase     SupabaseConfig     `yaml:"supabase"`
	SQLite       SQLiteConfig       `yaml:"sqlite"`
	LocalStorage LocalStorageConfig `yaml:"local_storage"`
	Memory       MemoryConfig       `yaml:"memory"`
}

type FirebaseConfig struct {
	ProjectID   string `yaml:"project_id" env:"FIREBASE_PROJECT_ID"`
	APIKey      string `yaml:"api_key" env:"FIREBASE_API_KEY"`
	ClientEmail string `yaml:"client_email" env:"FIREBASE_CLIENT_EMAIL"`
	PrivateKey  string `yaml:"private_key" env:"FIREBASE_PRIVATE_KEY"`
	// Overrides de endpoints, solo para tests o emuladores.
	JWKSURL         string `yaml:"jwks_url" env:"FIREBASE_JWKS_URL"`
	IdentityBaseURL string `yaml:"identity_base_url" env:"FIREBASE_IDENTITY_BASE_URL"`
	TokenURL        string `yaml:"token_url" env:"FIREBASE_TOKEN_URL"`
}

type SupabaseConfig struct {
	URL            string `yaml:"url" env:"SUPABASE_URL"`
	AnonKey        string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	DBDSN          string `yaml:"db_dsn" env:"SUPABASE_DB_DSN"`
	MaxConns       int    `yaml:"max_conns" env:"SUPABASE_DB_MAX_CONNS"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH"`
}

type LocalStorageConfig struct {
	Root          string `yaml:"root" env:"LOCAL_STORAGE_ROOT"`
	PublicBaseURL string `yaml:"public_base_url" env:"LOCAL_STORAGE_PUBLIC_BASE_URL"`
}

type MemoryConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"MEMORY_JWT_SECRET"`
	TokenTTL  string `yaml:"token_ttl" env:"MEMORY_TOKEN_TTL"`
}

// Load lee el YAML (si path no es vacío), aplica defaults y luego overrides de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "agenda"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 120
	}
	if c.Rate.RedisPrefix == "" {
		c.Rate.RedisPrefix = "agenda:rl:"
	}

	p := &c.Providers
	if p.DefaultBucket == "" {
		p.DefaultBucket = "event-images"
	}
	if p.HTTPTimeout == "" {
		p.HTTPTimeout = "10s"
	}
	if p.Supabase.MaxConns == 0 {
		p.Supabase.MaxConns = 10
	}
	if p.Memory.TokenTTL == "" {
		p.Memory.TokenTTL = "1h"
	}
	// Las claves PEM en variables de entorno suelen venir con \n escapados.
	p.Firebase.PrivateKey = strings.ReplaceAll(p.Firebase.PrivateKey, `\n`, "\n")
}

// Validate chequea la selección de providers y las credenciales requeridas.
// Devuelve un error por cada campo faltante, unidos con errors.Join.
func (c *Config) Validate() error {
	var errs []error

	for _, d := range []struct{ field, val string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"rate.window", c.Rate.Window},
		{"providers.http_timeout", c.Providers.HTTPTimeout},
		{"providers.memory.token_ttl", c.Providers.Memory.TokenTTL},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			errs = append(errs, fmt.Errorf("invalid duration for %s: %q", d.field, d.val))
		}
	}

	for _, tp := range c.Rate.TrustedProxies {
		if _, err := netip.ParsePrefix(tp); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(tp); err != nil {
			errs = append(errs, fmt.Errorf("invalid rate.trusted_proxies entry: %q", tp))
		}
	}

	if err := c.Providers.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate chequea solo el bloque de providers.
func (p ProviderConfig) Validate() error {
	var errs []error

	for _, sel := range []struct{ capability, provider string }{
		{"auth", p.Auth},
		{"database", p.Database},
		{"storage", p.Storage},
		{"functions", p.Functions},
	} {
		if sel.provider == "" {
			errs = append(errs, &MissingFieldError{Field: "providers." + sel.capability, Env: strings.ToUpper(sel.capability) + "_PROVIDER"})
			continue
		}
		if !contains(allowedProviders[sel.capability], sel.provider) {
			errs = append(errs, fmt.Errorf("unknown %s provider %q (allowed: %s)",
				sel.capability, sel.provider, strings.Join(allowedProviders[sel.capability], ", ")))
		}
	}

	req := requiredFields(p)
	seen := make(map[string]bool)
	for _, f := range req {
		if seen[f.Field] || f.value != "" {
			continue
		}
		seen[f.Field] = true
		errs = append(errs, &MissingFieldError{Field: f.Field, Env: f.Env})
	}

	return errors.Join(errs...)
}

// MissingFieldError falta una credencial requerida por el provider seleccionado.
type MissingFieldError struct {
	Field string
	Env   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required config: %s (%s)", e.Field, e.Env)
}

type requirement struct {
	MissingFieldError
	value string
}

func req(field, envName, value string) requirement {
	return requirement{MissingFieldError{Field: field, Env: envName}, value}
}

func requiredFields(p ProviderConfig) []requirement {
	var out []requirement
	fb, sb := p.Firebase, p.Supabase

	switch p.Auth {
	case ProviderFirebase:
		out = append(out,
			req("providers.firebase.project_id", "FIREBASE_PROJECT_ID", fb.ProjectID),
			req("providers.firebase.api_key", "FIREBASE_API_KEY", fb.APIKey),
			req("providers.firebase.client_email", "FIREBASE_CLIENT_EMAIL", fb.ClientEmail),
			req("providers.firebase.private_key", "FIREBASE_PRIVATE_KEY", fb.PrivateKey),
		)
	case ProviderSupabase:
		out = append(out,
			req("providers.supabase.url", "SUPABASE_URL", sb.URL),
			req("providers.supabase.anon_key", "SUPABASE_ANON_KEY", sb.AnonKey),
			req("providers.supabase.jwt_secret", "SUPABASE_JWT_SECRET", sb.JWTSecret),
		)
	case ProviderMemory:
		out = append(out, req("providers.memory.jwt_secret", "MEMORY_JWT_SECRET", p.Memory.JWTSecret))
	}

	switch p.Database {
	case ProviderSupabase:
		out = append(out, req("providers.supabase.db_dsn", "SUPABASE_DB_DSN", sb.DBDSN))
	case ProviderSQLite:
		out = append(out, req("providers.sqlite.path", "SQLITE_PATH", p.SQLite.Path))
	}

	switch p.Storage {
	case ProviderSupabase:
		out = append(out,
			req("providers.supabase.url", "SUPABASE_URL", sb.URL),
			req("providers.supabase.service_role_key", "SUPABASE_SERVICE_ROLE_KEY", sb.ServiceRoleKey),
		)
	case ProviderLocal:
		out = append(out,
			req("providers.local_storage.root", "LOCAL_STORAGE_ROOT", p.LocalStorage.Root),
			req("providers.local_storage.public_base_url", "LOCAL_STORAGE_PUBLIC_BASE_URL", p.LocalStorage.PublicBaseURL),
		)
	}

	if p.Functions == ProviderSupabase {
		out = append(out,
			req("providers.supabase.url", "SUPABASE_URL", sb.URL),
			req("providers.supabase.service_role_key", "SUPABASE_SERVICE_ROLE_KEY", sb.ServiceRoleKey),
		)
	}
	return out
}

// Timeout parsea HTTPTimeout; devuelve 10s si es inválido.
func (p ProviderConfig) Timeout() time.Duration {
	return durOr(p.HTTPTimeout, 10*time.Second)
}

// Dur parsea una duración de la config con fallback.
func Dur(s string, def time.Duration) time.Duration {
	return durOr(s, def)
}

func durOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
