package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/http/controllers/files"
	mw "github.com/dropDatabas3/agenda/internal/http/middlewares"
	"github.com/dropDatabas3/agenda/internal/http/router"
	"github.com/dropDatabas3/agenda/internal/http/server"
	"github.com/dropDatabas3/agenda/internal/identity"
	"github.com/dropDatabas3/agenda/internal/metrics"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
	"github.com/dropDatabas3/agenda/internal/observability/tracing"
	"github.com/dropDatabas3/agenda/internal/rate"
	"github.com/dropDatabas3/agenda/internal/registry"
)

// loadConfig lee y valida la config e inicializa el logger.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     firstNonEmpty(cfg.App.Version, version),
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.L().With(logger.Component("main"))

	shutdownTracing, err := tracing.Setup(ctx, cfg.App.Name, firstNonEmpty(cfg.App.Version, version), cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing disabled", logger.Err(err))
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

	reg := registry.Init(cfg.Providers)
	defer func() {
		if err := registry.ResetDefault(); err != nil {
			log.Warn("closing providers", logger.Err(err))
		}
	}()
	if err := reg.Validate(); err != nil {
		return err
	}
	if err := reg.Warm(ctx); err != nil {
		return fmt.Errorf("provider warmup: %w", err)
	}

	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	limiter, closeLimiter, err := buildLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	trusted, err := mw.ParseTrustedProxies(cfg.Rate.TrustedProxies)
	if err != nil {
		return err
	}

	deps := router.Deps{
		Providers:   reg,
		Auth:        mw.PipelineAuthenticator{P: identity.NewPipeline(identity.NewVerifier(reg), identity.NewResolver(reg))},
		Limiter:     limiter,
		Metrics:     metricsHandler,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Version:     firstNonEmpty(cfg.App.Version, version),

		TrustedProxies: trusted,
	}
	if st, err := reg.Storage(ctx); err == nil {
		if opener, ok := st.(files.Opener); ok {
			deps.Files = opener
		}
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     config.Dur(cfg.Server.ReadTimeout, 0),
		WriteTimeout:    config.Dur(cfg.Server.WriteTimeout, 0),
		ShutdownTimeout: config.Dur(cfg.Server.ShutdownTimeout, 0),
	}, router.New(deps))

	log.Info("starting agenda",
		logger.String("env", cfg.App.Env),
		logger.Provider(cfg.Providers.Auth+"/"+cfg.Providers.Database+"/"+cfg.Providers.Storage+"/"+cfg.Providers.Functions),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("agenda stopped")
	return nil
}

// buildLimiter Redis si hay dirección configurada; si no, memoria.
func buildLimiter(ctx context.Context, cfg *config.Config) (rate.Limiter, func(), error) {
	if !cfg.Rate.Enabled {
		return nil, func() {}, nil
	}
	window := config.Dur(cfg.Rate.Window, 0)
	if cfg.Rate.RedisAddr == "" {
		return rate.NewMemoryLimiter(cfg.Rate.MaxRequests, window), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Rate.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("rate limiter redis %s: %w", cfg.Rate.RedisAddr, err)
	}
	l := rate.NewRedisLimiter(client, cfg.Rate.RedisPrefix, cfg.Rate.MaxRequests, window)
	return l, func() { _ = l.Close() }, nil
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes del provider de base de datos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			// Abrir la base aplica las migraciones embebidas.
			reg := registry.New(cfg.Providers)
			defer reg.Close()
			db, err := reg.Database(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations up to date (%s)\n", db.Name())
			return nil
		},
	}
}

func configCmd(configPath *string) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspección de configuración",
	}
	c.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Valida la configuración y lista los providers disponibles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := registry.New(cfg.Providers).Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := cfg.Providers
			fmt.Fprintf(out, "auth=%s database=%s storage=%s functions=%s\n", p.Auth, p.Database, p.Storage, p.Functions)
			for _, capName := range []string{registry.CapAuth, registry.CapDatabase, registry.CapStorage, registry.CapFunctions} {
				fmt.Fprintf(out, "  %-9s available: %v\n", capName, registry.Providers(capName))
			}
			fmt.Fprintln(out, "config ok")
			return nil
		},
	})
	return c
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
