// Package config loads the example server configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config is the example server configuration.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":2112"`

	ServiceName    string        `env:"SERVICE_NAME" envDefault:"sentinel-connect-example"`
	ServiceVersion string        `env:"SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       zerolog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// OTLPEndpoint enables span export over OTLP/gRPC when set.
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	// RedisAddr switches rate limiting to Redis when set.
	RedisAddr string     `env:"REDIS_ADDR"`
	RateLimit rate.Limit `env:"RATE_LIMIT" envDefault:"100"`
	RateBurst int        `env:"RATE_BURST" envDefault:"200"`

	// ServiceClients maps client IDs to pass keys for /internal routes,
	// as "svc-a:key-a,svc-b:key-b".
	ServiceClients map[string]string `env:"SERVICE_CLIENTS"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`

	PprofUsername string `env:"PPROF_USERNAME"`
	PprofPassword string `env:"PPROF_PASSWORD"`
}

// IsProduction reports whether the server runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads .env from the working directory when present, then parses
// the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Parse parses cfg from the given variables only.
func Parse(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
