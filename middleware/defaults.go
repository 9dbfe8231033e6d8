package middleware

import "github.com/kroma-labs/sentinel-connect/connect"

type defaultsConfig struct {
	logger  *LoggerConfig
	tracing *TracingConfig
	metrics *Metrics
}

// DefaultsOption configures Defaults.
type DefaultsOption func(*defaultsConfig)

// WithLogging adds Logger to the stack.
func WithLogging(cfg LoggerConfig) DefaultsOption {
	return func(c *defaultsConfig) {
		c.logger = &cfg
	}
}

// WithTracing adds Tracing to the stack.
func WithTracing(cfg TracingConfig) DefaultsOption {
	return func(c *defaultsConfig) {
		c.tracing = &cfg
	}
}

// WithMetrics adds the handler of m to the stack.
func WithMetrics(m *Metrics) DefaultsOption {
	return func(c *defaultsConfig) {
		c.metrics = m
	}
}

// Defaults returns a sub-application with the usual observability stack,
// in order: Tracing, RequestID, Logger, metrics. Only RequestID is always
// present. Error rendering belongs at the end of the outer chain.
//
//	c.Use(middleware.Defaults(
//	    middleware.WithLogging(middleware.LoggerConfig{}),
//	    middleware.WithMetrics(metrics),
//	))
func Defaults(opts ...DefaultsOption) *connect.Engine {
	cfg := &defaultsConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	e := connect.New().Disable(connect.SettingPoweredBy)
	if cfg.tracing != nil {
		e.Use(Tracing(*cfg.tracing))
	}
	e.Use(RequestID())
	if cfg.logger != nil {
		e.Use(Logger(*cfg.logger))
	}
	if cfg.metrics != nil {
		e.Use(cfg.metrics.Handler())
	}
	return e
}
