package middleware

import (
	"net/http"
	"time"

	"github.com/kroma-labs/sentinel-connect/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records server metrics with OpenTelemetry.
type Metrics struct {
	serviceName     string
	skipPaths       map[string]bool
	requestDuration metric.Float64Histogram
	requestSize     metric.Int64Histogram
	responseSize    metric.Int64Histogram
	activeRequests  metric.Int64UpDownCounter
	requestTotal    metric.Int64Counter
	responseStatus  metric.Int64Counter
}

// MetricsConfig configures the metrics middleware.
type MetricsConfig struct {
	// MeterProvider is the OTel meter provider.
	// If nil, uses otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// ServiceName is recorded as service.name when set.
	ServiceName string

	// SkipPaths are paths that should not be recorded.
	SkipPaths []string

	// Buckets for request duration histogram (in seconds).
	// Default: [0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10]
	DurationBuckets []float64
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterProvider:   otel.GetMeterProvider(),
		DurationBuckets: defaultDurationBuckets(),
	}
}

func defaultDurationBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

// NewMetrics creates the instruments.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = defaultDurationBuckets()
	}

	meter := cfg.MeterProvider.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.DurationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	requestSize, err := meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("Size of HTTP request bodies in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	responseSize, err := meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("Size of HTTP response bodies in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	responseStatus, err := meter.Int64Counter(
		"http.server.response.status",
		metric.WithDescription("HTTP response status code distribution"),
	)
	if err != nil {
		return nil, err
	}

	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return &Metrics{
		serviceName:     cfg.ServiceName,
		skipPaths:       skipPaths,
		requestDuration: requestDuration,
		requestSize:     requestSize,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
		requestTotal:    requestTotal,
		responseStatus:  responseStatus,
	}, nil
}

// Handler returns middleware recording the metrics of each request once
// its response is complete.
//
//	metrics, err := middleware.NewMetrics(middleware.DefaultMetricsConfig())
//	if err != nil {
//	    return err
//	}
//	c.Use(metrics.Handler())
func (m *Metrics) Handler() connect.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next connect.Next) {
		path := originalPath(r)
		if m.skipPaths[path] {
			next(nil)
			return
		}

		start := time.Now()
		ctx := r.Context()

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", path),
		}
		if m.serviceName != "" {
			attrs = append(attrs, attribute.String("service.name", m.serviceName))
		}

		m.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
		if r.ContentLength > 0 {
			m.requestSize.Record(ctx, r.ContentLength, metric.WithAttributes(attrs...))
		}

		record := func() {
			status, written := http.StatusOK, 0
			if sw, ok := connect.StatusWriterOf(w); ok {
				status, written = sw.Status(), sw.BytesWritten()
			}

			allAttrs := make([]attribute.KeyValue, len(attrs)+1)
			copy(allAttrs, attrs)
			allAttrs[len(attrs)] = attribute.Int("http.response.status_code", status)

			m.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))
			m.requestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(allAttrs...))
			m.responseSize.Record(ctx, int64(written), metric.WithAttributes(allAttrs...))
			m.requestTotal.Add(ctx, 1, metric.WithAttributes(allAttrs...))
			m.responseStatus.Add(ctx, 1, metric.WithAttributes(allAttrs...))
		}

		if connect.AfterResponse(r, record) {
			next(nil)
			return
		}
		next(nil)
		record()
	}
}
