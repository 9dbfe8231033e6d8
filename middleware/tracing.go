package middleware

import (
	"net/http"

	"github.com/kroma-labs/sentinel-connect/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/kroma-labs/sentinel-connect/middleware"

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// TracerProvider is the OTel tracer provider.
	// If nil, uses otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// Propagator is the context propagator.
	// If nil, uses otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator

	// ServiceName is recorded on every span when set.
	ServiceName string

	// SkipPaths are paths that should not be traced.
	SkipPaths []string

	// SpanNameFormatter formats the span name.
	// Default: "HTTP {method} {path}"
	SpanNameFormatter func(r *http.Request) string
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerProvider:    otel.GetTracerProvider(),
		Propagator:        otel.GetTextMapPropagator(),
		SpanNameFormatter: defaultSpanName,
	}
}

func defaultSpanName(r *http.Request) string {
	return "HTTP " + r.Method + " " + originalPath(r)
}

// Tracing returns middleware that starts a server span per request.
//
// It is a std middleware so the span context reaches everything after it:
// later handlers and, in a bridged app, the host route handler. The span
// ends once the response is complete and is marked as an error on 5xx.
func Tracing(cfg TracingConfig) connect.Middleware {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.SpanNameFormatter == nil {
		cfg.SpanNameFormatter = defaultSpanName
	}

	tracer := cfg.TracerProvider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion("1.0.0"),
	)

	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[originalPath(r)] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := cfg.Propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			scheme := "http"
			if x := connect.ExchangeFrom(r); x != nil {
				scheme = x.Protocol()
			} else if r.TLS != nil {
				scheme = "https"
			}

			attrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(originalPath(r)),
				semconv.URLScheme(scheme),
				semconv.ServerAddress(r.Host),
				semconv.UserAgentOriginal(r.UserAgent()),
				semconv.ClientAddress(clientIP(r)),
			}
			if cfg.ServiceName != "" {
				attrs = append(attrs, semconv.ServiceName(cfg.ServiceName))
			}
			if id := RequestIDFrom(r); id != "" {
				attrs = append(attrs, attribute.String("request.id", id))
			}

			ctx, span := tracer.Start(ctx, cfg.SpanNameFormatter(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)

			end := func() {
				status := http.StatusOK
				if sw, ok := connect.StatusWriterOf(w); ok {
					status = sw.Status()
				}
				span.SetAttributes(semconv.HTTPResponseStatusCode(status))
				if status >= 500 {
					span.SetStatus(codes.Error, http.StatusText(status))
				}
				span.End()
			}

			deferred := connect.AfterResponse(r, end)
			next.ServeHTTP(w, r.WithContext(ctx))
			if !deferred {
				end()
			}
		})
	}
}
