package httpserver

import (
	"crypto/tls"
	"time"

	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/rs/zerolog"
)

// Config holds the HTTP server configuration parameters.
//
// Use DefaultConfig(), ProductionConfig(), or DevelopmentConfig() to get
// a properly initialized configuration, then modify specific fields as needed.
//
// Example:
//
//	cfg := httpserver.DefaultConfig()
//	cfg.Addr = ":9090"
//	cfg.ShutdownTimeout = 15 * time.Second
//
//	server, err := httpserver.New(
//	    httpserver.WithConfig(cfg),
//	    httpserver.WithApp(app),
//	)
type Config struct {
	// Addr is the TCP address to listen on (default: ":8080").
	Addr string

	// MetricsAddr, when set, serves the Prometheus endpoint on a separate
	// listener next to Addr, e.g. ":9090".
	MetricsAddr string

	// MetricsPath is the path of the Prometheus endpoint on MetricsAddr.
	// Default: "/metrics"
	MetricsPath string

	// ServiceName is the name of the service (e.g. "my-service").
	// This is used for metrics, tracing, request logs and health checks.
	// Default: "http-server"
	ServiceName string

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	//
	// Setting this helps protect against slow-loris attacks where a client
	// sends data very slowly to hold connections open.
	//
	// Default: 15s
	ReadTimeout time.Duration

	// ReadHeaderTimeout is the maximum duration for reading request headers.
	// If zero, ReadTimeout is used. If both are zero, there is no timeout.
	//
	// Default: 10s
	ReadHeaderTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// A zero or negative value means no timeout.
	//
	// Default: 15s
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request when
	// keep-alives are enabled. If zero, ReadTimeout is used.
	//
	// Default: 60s
	IdleTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values.
	//
	// Default: 1MB (1 << 20)
	MaxHeaderBytes int

	// TLSConfig optionally provides TLS configuration for HTTPS.
	TLSConfig *tls.Config

	// Logger is used for server lifecycle events.
	// Default: zerolog to stdout with timestamps
	Logger zerolog.Logger

	// App is the application to serve. Required.
	App *lifecycle.App

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to complete during graceful shutdown.
	//
	// When shutdown is triggered:
	// 1. Server stops accepting new connections
	// 2. Waits up to ShutdownTimeout for in-flight requests to complete
	// 3. Forcibly closes remaining connections
	//
	// Default: 10s
	ShutdownTimeout time.Duration

	// TracingConfig enables tracing on the app. ServiceName is applied.
	TracingConfig *middleware.TracingConfig

	// MetricsConfig enables request metrics on the app. ServiceName is applied.
	MetricsConfig *middleware.MetricsConfig

	// LoggerConfig enables request logging on the app. ServiceName is applied.
	LoggerConfig *middleware.LoggerConfig

	// RateLimitConfig enables a rate limit on every request of the app.
	RateLimitConfig *middleware.RateLimitConfig

	// HealthHandler is populated by WithHealth with the server's ServiceName.
	HealthHandler **HealthHandler

	// HealthVersion is the version string for health responses.
	HealthVersion string
}

// DefaultConfig returns a balanced configuration suitable for most use cases.
//
// Timeout values:
//   - ReadTimeout: 15s
//   - WriteTimeout: 15s
//   - IdleTimeout: 60s
//   - ShutdownTimeout: 10s
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		MetricsPath:       "/metrics",
		ServiceName:       "http-server",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		ShutdownTimeout:   10 * time.Second,
	}
}

// ProductionConfig returns a hardened configuration optimized for production.
//
// Designed for Kubernetes environments where the default
// terminationGracePeriodSeconds is 30s: ShutdownTimeout (25s) leaves a 5s
// buffer before SIGKILL.
//
// Timeout values:
//   - ReadTimeout: 10s
//   - WriteTimeout: 10s
//   - IdleTimeout: 30s
//   - ShutdownTimeout: 25s
func ProductionConfig() Config {
	return Config{
		Addr:              ":8080",
		MetricsPath:       "/metrics",
		ServiceName:       "http-server",
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		ShutdownTimeout:   25 * time.Second,
	}
}

// DevelopmentConfig returns a lenient configuration for local development:
// no read or write timeouts, so breakpoints do not kill requests, and a
// short shutdown for fast restarts.
//
// Warning: Do not use this in production!
//
// Timeout values:
//   - ReadTimeout: 0 (unlimited)
//   - WriteTimeout: 0 (unlimited)
//   - IdleTimeout: 120s
//   - ShutdownTimeout: 3s
func DevelopmentConfig() Config {
	return Config{
		Addr:              ":8080",
		MetricsPath:       "/metrics",
		ServiceName:       "http-server",
		ReadTimeout:       0,
		ReadHeaderTimeout: 0,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		ShutdownTimeout:   3 * time.Second,
	}
}
