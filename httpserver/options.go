package httpserver

import (
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/rs/zerolog"
)

// Option configures the server.
type Option func(*Config)

// WithConfig applies all settings from a Config struct.
//
// Use one of the preset configurations (DefaultConfig, ProductionConfig,
// DevelopmentConfig) as a starting point, then override specific fields.
// Options after WithConfig still apply on top of it.
//
//	cfg := httpserver.ProductionConfig()
//	cfg.Addr = ":9090"
//
//	server, err := httpserver.New(
//	    httpserver.WithConfig(cfg),
//	    httpserver.WithServiceName("my-api"),
//	    httpserver.WithApp(app),
//	)
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		app := c.App
		*c = cfg
		if c.App == nil {
			c.App = app
		}
	}
}

// WithApp sets the application to serve. Required.
func WithApp(app *lifecycle.App) Option {
	return func(c *Config) {
		c.App = app
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithServiceName sets the service name for the entire server.
//
// The server passes it to every component that reports service identity:
// tracing spans, metrics, request logs and health responses.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithLogger sets the server logger for lifecycle events only: startup,
// shutdown and listener errors.
//
// Request logs go through the app's request logger; enable them with
// WithLogging.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithPrometheus serves the Prometheus default registry on a separate
// listener at addr.
//
//	httpserver.WithPrometheus(":9090")
func WithPrometheus(addr string) Option {
	return func(c *Config) {
		c.MetricsAddr = addr
	}
}

// WithTracing mounts middleware.Tracing at the root of the app.
//
//	httpserver.WithTracing(middleware.TracingConfig{
//	    SkipPaths: []string{"/livez", "/readyz", "/ping"},
//	})
func WithTracing(cfg middleware.TracingConfig) Option {
	return func(c *Config) {
		c.TracingConfig = &cfg
	}
}

// WithMetrics mounts request metrics at the root of the app.
func WithMetrics(cfg middleware.MetricsConfig) Option {
	return func(c *Config) {
		c.MetricsConfig = &cfg
	}
}

// WithLogging mounts middleware.Logger at the root of the app.
//
//	httpserver.WithLogging(middleware.LoggerConfig{
//	    SkipPaths: []string{"/livez", "/readyz", "/ping"},
//	})
func WithLogging(cfg middleware.LoggerConfig) Option {
	return func(c *Config) {
		c.LoggerConfig = &cfg
	}
}

// WithRateLimit mounts middleware.RateLimit at the root of the app. Limited
// requests are answered with 429 by the app's error handler.
//
// For per-prefix limits, mount middleware.RateLimit with UseAt instead.
func WithRateLimit(cfg middleware.RateLimitConfig) Option {
	return func(c *Config) {
		c.RateLimitConfig = &cfg
	}
}

// WithHealth registers /ping, /livez and /readyz on the app and stores the
// handler in *handler for adding checks.
//
//	var health *httpserver.HealthHandler
//	server, err := httpserver.New(
//	    httpserver.WithServiceName("my-api"),
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithApp(app),
//	)
//
//	health.AddReadinessCheck("redis", func(ctx context.Context) error {
//	    return rdb.Ping(ctx).Err()
//	})
func WithHealth(handler **HealthHandler, version string) Option {
	return func(c *Config) {
		c.HealthVersion = version
		c.HealthHandler = handler
	}
}
