// Package middleware provides production middleware for connect engines.
//
// Every constructor returns a value accepted by connect.Engine.Use, so the
// same middleware serves a standalone engine, a bridged lifecycle.App and
// the framework adapters:
//
//	c.Use(middleware.RequestID()).
//	    Use(middleware.Logger(middleware.LoggerConfig{SkipPaths: []string{"/livez"}})).
//	    Use(middleware.Tracing(middleware.DefaultTracingConfig())).
//	    Use(metrics.Handler()).
//	    Use(middleware.RateLimit(middleware.DefaultRateLimitConfig())).
//	    Use(middleware.Errors(middleware.ErrorsConfig{}))
//
// Work that needs the final status (logging, metrics, span status) is
// deferred with connect.AfterResponse, so it observes the response even
// when the host writes it after the chain has finished.
package middleware
