// Package httpserver runs a lifecycle.App as a production HTTP server with
// graceful shutdown, observability, health checks and profiling.
//
// # Quick Start
//
//	app := lifecycle.New(lifecycle.WithLogger(logger))
//	app.Get("/", home)
//
//	server, err := httpserver.New(
//	    httpserver.WithServiceName("my-api"),
//	    httpserver.WithApp(app),
//	)
//	if err != nil {
//	    return err
//	}
//
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # ServiceName Integration
//
// The server's ServiceName is propagated to every observability component.
// Set it once and it appears everywhere:
//
//	server, err := httpserver.New(
//	    httpserver.WithServiceName("payment-api"),
//	    httpserver.WithTracing(middleware.TracingConfig{}),
//	    httpserver.WithMetrics(middleware.MetricsConfig{}),
//	    httpserver.WithLogging(middleware.LoggerConfig{}),
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithApp(app),
//	)
//
// Tracing, logging, metrics and rate limiting are connect-style middleware
// mounted at the root scope of the app through the bridge, so they see the
// final status written by the app and run for every route, including
// scoped not-found handlers.
//
// # Configuration
//
// Use preset configurations as a starting point:
//
//	server, err := httpserver.New(
//	    httpserver.WithConfig(httpserver.ProductionConfig()),
//	    httpserver.WithServiceName("payment-api"),
//	    httpserver.WithApp(app),
//	)
//
// # Prometheus
//
// Serve the default registry on its own port, or as a route of the app:
//
//	httpserver.WithPrometheus(":9090")
//	httpserver.RegisterPrometheus(app.Scope, "/metrics", nil)
//
// # Health Checks
//
//	var health *httpserver.HealthHandler
//	server, err := httpserver.New(
//	    httpserver.WithServiceName("my-api"),
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithApp(app),
//	)
//
//	health.AddReadinessCheck("redis", redisPingCheck)
//
// # Framework Adapters
//
// To run connect middleware inside other frameworks instead of a
// lifecycle.App, see the adapters packages:
//
//	import "github.com/kroma-labs/sentinel-connect/adapters/gin"
//	import "github.com/kroma-labs/sentinel-connect/adapters/echo"
//	import "github.com/kroma-labs/sentinel-connect/adapters/fiber"
package httpserver
