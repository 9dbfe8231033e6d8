// Command server is a runnable example of sentinel-connect: an order API
// on a lifecycle.App with connect middleware mounted through the bridge,
// served by httpserver with tracing, metrics, logging, health checks and
// optional Redis rate limiting.
//
//	ADDR=:8080 REDIS_ADDR=localhost:6379 SERVICE_CLIENTS=svc-a:secret go run ./example/server
package main

import (
	"context"
	"os"
	"time"

	"github.com/kroma-labs/sentinel-connect/example/server/internal/api"
	"github.com/kroma-labs/sentinel-connect/example/server/internal/config"
	"github.com/kroma-labs/sentinel-connect/example/server/internal/telemetry"
	"github.com/kroma-labs/sentinel-connect/httpserver"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsProduction() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	return logger.Level(cfg.LogLevel).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	app := lifecycle.New(
		lifecycle.WithLogger(logger),
		lifecycle.WithTrustProxy(cfg.IsProduction()),
		lifecycle.WithDisableRequestLogging(),
	)

	serverCfg := httpserver.DevelopmentConfig()
	if cfg.IsProduction() {
		serverCfg = httpserver.ProductionConfig()
	}

	var health *httpserver.HealthHandler
	server, err := httpserver.New(
		httpserver.WithConfig(serverCfg),
		httpserver.WithApp(app),
		httpserver.WithAddr(cfg.Addr),
		httpserver.WithServiceName(cfg.ServiceName),
		httpserver.WithLogger(logger),
		httpserver.WithPrometheus(cfg.MetricsAddr),
		httpserver.WithTracing(middleware.DefaultTracingConfig()),
		httpserver.WithMetrics(middleware.DefaultMetricsConfig()),
		httpserver.WithLogging(middleware.LoggerConfig{
			SkipPaths: []string{"/ping", "/livez", "/readyz"},
		}),
		httpserver.WithHealth(&health, cfg.ServiceVersion),
	)
	if err != nil {
		return err
	}

	deps := api.Deps{
		RateLimit: middleware.RateLimitConfig{
			Limit:   cfg.RateLimit,
			Burst:   cfg.RateBurst,
			KeyFunc: middleware.KeyFuncByIP(),
		},
		LimiterTimeout: cfg.RequestTimeout,
	}
	if len(cfg.ServiceClients) > 0 {
		deps.Clients = middleware.NewMemoryCredentialValidator(cfg.ServiceClients)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("redis close failed")
			}
		}()
		deps.RateLimit.Redis = rdb
		health.AddReadinessCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	if err := api.Register(app.Scope, deps); err != nil {
		return err
	}

	if cfg.PprofUsername != "" && cfg.PprofPassword != "" {
		if err := httpserver.RegisterPprof(app.Scope, httpserver.PprofConfig{
			EnableAuth: true,
			Username:   cfg.PprofUsername,
			Password:   cfg.PprofPassword,
		}); err != nil {
			return err
		}
	}

	return server.ListenAndServe(ctx)
}
