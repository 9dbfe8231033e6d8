package lifecycle

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader is the default header a request ID is taken from.
const RequestIDHeader = "X-Request-ID"

// Config holds the App configuration.
//
// Example:
//
//	cfg := lifecycle.DefaultConfig()
//	cfg.TrustProxy = true
//
//	app := lifecycle.New(lifecycle.WithConfig(cfg))
type Config struct {
	// Logger is the root logger. Each request logs through a child logger
	// carrying its reqId.
	// Default: zerolog.Nop()
	Logger zerolog.Logger

	// TrustProxy makes IP, IPs, Hostname and Protocol honor the
	// X-Forwarded-For, X-Forwarded-Host and X-Forwarded-Proto headers.
	TrustProxy bool

	// RequestIDHeader is the header a request ID is read from.
	// Default: "X-Request-ID"
	RequestIDHeader string

	// GenReqID generates a request ID when the header is absent.
	// Default: UUID v4
	GenReqID func(r *http.Request) string

	// BodyLimit is the maximum request body size in bytes.
	// Default: 1 MiB
	BodyLimit int64

	// DisableRequestLogging turns off the per-request "incoming request"
	// and "request completed" entries.
	DisableRequestLogging bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Logger:          zerolog.Nop(),
		RequestIDHeader: RequestIDHeader,
		GenReqID: func(*http.Request) string {
			return uuid.New().String()
		},
		BodyLimit: 1 << 20,
	}
}

// Option configures the App.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithLogger sets the root logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTrustProxy enables X-Forwarded-* handling.
func WithTrustProxy(trust bool) Option {
	return func(c *Config) {
		c.TrustProxy = trust
	}
}

// WithRequestIDHeader sets the header a request ID is read from.
func WithRequestIDHeader(header string) Option {
	return func(c *Config) {
		c.RequestIDHeader = header
	}
}

// WithGenReqID sets the request ID generator.
func WithGenReqID(fn func(r *http.Request) string) Option {
	return func(c *Config) {
		c.GenReqID = fn
	}
}

// WithBodyLimit sets the maximum request body size in bytes.
func WithBodyLimit(limit int64) Option {
	return func(c *Config) {
		c.BodyLimit = limit
	}
}

// WithDisableRequestLogging turns off per-request log entries.
func WithDisableRequestLogging() Option {
	return func(c *Config) {
		c.DisableRequestLogging = true
	}
}
