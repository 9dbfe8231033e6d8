package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/kroma-labs/sentinel-connect/bridge"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNoApp is returned by New without WithApp.
var ErrNoApp = errors.New("httpserver: app is required (use WithApp)")

// Server serves a lifecycle.App with graceful shutdown, signal handling,
// and lifecycle logging. An optional second listener exposes Prometheus
// metrics.
//
//	server, err := httpserver.New(
//	    httpserver.WithConfig(httpserver.ProductionConfig()),
//	    httpserver.WithServiceName("my-api"),
//	    httpserver.WithApp(app),
//	)
//	if err != nil {
//	    return err
//	}
//
//	// Blocks until shutdown signal (SIGTERM, SIGINT) or context cancellation
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	app           *lifecycle.App
	connect       *bridge.Connect
	config        Config
	logger        zerolog.Logger
	serviceName   string
}

// New creates a Server for the app given with WithApp. If no config is
// provided, DefaultConfig() is used.
//
// The observability options mount their middleware at the root of the app
// through the bridge, in order: tracing, request ID, logging, metrics, then
// the rate limit. They run before any middleware registered on the root
// after New. New must be called before the app is ready.
func New(opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.App == nil {
		return nil, ErrNoApp
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "http-server"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	c, err := mountMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.HealthHandler != nil {
		health := NewHealthHandler(
			withHealthServiceName(cfg.ServiceName),
			WithVersion(cfg.HealthVersion),
		)
		health.Register(cfg.App.Scope)
		*cfg.HealthHandler = health
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           cfg.App,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
			TLSConfig:         cfg.TLSConfig,
		},
		app:         cfg.App,
		connect:     c,
		config:      cfg,
		logger:      logger,
		serviceName: cfg.ServiceName,
	}

	if cfg.MetricsAddr != "" {
		mux := chi.NewRouter()
		mux.Method(http.MethodGet, cfg.MetricsPath, PrometheusHandler())
		s.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
	}

	return s, nil
}

// mountMiddleware registers the configured observability stack on the root
// scope and returns the root bridge, if any.
func mountMiddleware(cfg Config) (*bridge.Connect, error) {
	var stack []middleware.DefaultsOption
	if cfg.TracingConfig != nil {
		tracingCfg := *cfg.TracingConfig
		tracingCfg.ServiceName = cfg.ServiceName
		stack = append(stack, middleware.WithTracing(tracingCfg))
	}
	if cfg.LoggerConfig != nil {
		loggerCfg := *cfg.LoggerConfig
		loggerCfg.ServiceName = cfg.ServiceName
		stack = append(stack, middleware.WithLogging(loggerCfg))
	}
	if cfg.MetricsConfig != nil {
		metricsCfg := *cfg.MetricsConfig
		metricsCfg.ServiceName = cfg.ServiceName
		metrics, err := middleware.NewMetrics(metricsCfg)
		if err != nil {
			return nil, fmt.Errorf("httpserver: metrics: %w", err)
		}
		stack = append(stack, middleware.WithMetrics(metrics))
	}

	if len(stack) == 0 && cfg.RateLimitConfig == nil {
		return bridge.From(cfg.App.Scope), nil
	}

	c := bridge.From(cfg.App.Scope)
	if c == nil {
		var err error
		if c, err = bridge.Register(cfg.App.Scope); err != nil {
			return nil, fmt.Errorf("httpserver: %w", err)
		}
	}

	if len(stack) > 0 {
		c.Use(middleware.Defaults(stack...))
	}
	if cfg.RateLimitConfig != nil {
		c.Use(middleware.RateLimit(*cfg.RateLimitConfig))
	}
	return c, nil
}

// ListenAndServe listens on the configured address and serves until
// shutdown.
//
// The server shuts down gracefully when the context is cancelled, when
// SIGTERM or SIGINT is received, or when a listener fails. During shutdown
// it stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests. It returns nil on a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// ListenAndServeTLS is ListenAndServe with TLS from the given certificate
// and key files.
func (s *Server) ListenAndServeTLS(ctx context.Context, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}
	return s.run(ctx, ln, true, func() error {
		return s.httpServer.ServeTLS(ln, certFile, keyFile)
	})
}

// Serve serves on ln until shutdown, like ListenAndServe.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.run(ctx, ln, false, func() error {
		return s.httpServer.Serve(ln)
	})
}

func (s *Server) run(ctx context.Context, ln net.Listener, useTLS bool, serve func() error) error {
	if err := s.app.Ready(); err != nil {
		_ = ln.Close()
		return fmt.Errorf("httpserver: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Bool("tls", useTLS).
			Str("service", s.serviceName).
			Msg("server starting")

		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server error")
			return err
		}
		return nil
	})

	if s.metricsServer != nil {
		g.Go(func() error {
			s.logger.Info().
				Str("addr", s.metricsServer.Addr).
				Str("path", s.config.MetricsPath).
				Msg("metrics server starting")

			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics server error")
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info().
			Err(context.Cause(gctx)).
			Msg("shutting down")
		return s.shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

// shutdown performs graceful shutdown of both listeners.
func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info().
		Dur("timeout", s.config.ShutdownTimeout).
		Msg("starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().
			Err(err).
			Msg("graceful shutdown failed, forcing close")

		if closeErr := s.httpServer.Close(); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("force close failed")
		}
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info().Msg("server stopped gracefully")
	return nil
}

// Shutdown initiates graceful shutdown programmatically. A running Serve
// returns once in-flight requests are done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ServiceName returns the configured service name.
func (s *Server) ServiceName() string {
	return s.serviceName
}

// App returns the served application.
func (s *Server) App() *lifecycle.App {
	return s.app
}

// Connect returns the bridge registered on the root scope, or nil when no
// middleware option was used and the app registered none itself.
func (s *Server) Connect() *bridge.Connect {
	if s.connect != nil {
		return s.connect
	}
	return bridge.From(s.app.Scope)
}
