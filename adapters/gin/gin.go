// Package gin runs connect middleware inside a Gin router.
//
// # Quick Start
//
//	r := gin.New()
//
//	r.Use(ginconnect.Wrap(
//	    middleware.RequestID(),
//	    middleware.CORS(middleware.DefaultCORSConfig()),
//	))
//	r.Use(ginconnect.RateLimit(middleware.RateLimitConfig{
//	    Limit: 100,
//	    Burst: 200,
//	}))
//
//	ginconnect.RegisterPrometheus(r, "/metrics")
//
// # Semantics
//
// A chain that continues hands the request to the next Gin handler, with
// any request the chain replaced. A chain that writes the response aborts
// the Gin chain. An error left unhandled at the end of the chain aborts
// with its status and a middleware.Response body, and is recorded with
// c.Error. Functions registered with connect.AfterResponse run once the
// rest of the Gin chain has returned, so they see the final status.
package gin

import (
	"net/http"

	ginlib "github.com/gin-gonic/gin"
	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Middleware returns a Gin handler running e for every request.
func Middleware(e *connect.Engine) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		f := connect.FieldsFromRequest(c.Request)
		f.IP = c.ClientIP()
		f.IPs = []string{f.IP}
		x := connect.NewExchange(f)
		defer x.Finish()

		w, r := connect.Attach(responseWriter{c.Writer}, c.Request, x)
		res := e.Run(w, r)
		switch {
		case res.Err != nil:
			_ = c.Error(res.Err)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(connect.ErrorStatus(res.Err), middleware.Response[any]{
				Message: connect.PublicMessage(res.Err),
			})
		case res.Ended:
			c.Abort()
		default:
			c.Request = res.Request
			c.Next()
		}
	}
}

// Wrap returns a Gin handler running the given connect handlers in order.
// Each handler is anything connect.Engine.Use accepts.
//
//	r.Use(ginconnect.Wrap(middleware.RequestID(), authMiddleware))
func Wrap(handlers ...any) ginlib.HandlerFunc {
	e := connect.New().Disable(connect.SettingPoweredBy)
	for _, h := range handlers {
		e.Use(h)
	}
	return Middleware(e)
}

// RequestID returns Gin middleware that generates or forwards X-Request-ID.
func RequestID() ginlib.HandlerFunc {
	return Wrap(middleware.RequestID())
}

// Logger returns Gin middleware for structured request logging.
//
//	r.Use(ginconnect.Logger(middleware.LoggerConfig{
//	    Logger:    &logger,
//	    SkipPaths: []string{"/livez", "/metrics"},
//	}))
func Logger(cfg middleware.LoggerConfig) ginlib.HandlerFunc {
	return Wrap(middleware.Logger(cfg))
}

// Tracing returns Gin middleware for OpenTelemetry tracing.
func Tracing(cfg middleware.TracingConfig) ginlib.HandlerFunc {
	return Wrap(middleware.Tracing(cfg))
}

// CORS returns Gin middleware for CORS handling.
func CORS(cfg middleware.CORSConfig) ginlib.HandlerFunc {
	return Wrap(middleware.CORS(cfg))
}

// Metrics returns Gin middleware recording OTel request metrics.
//
//	metrics, _ := middleware.NewMetrics(middleware.DefaultMetricsConfig())
//	r.Use(ginconnect.Metrics(metrics))
func Metrics(m *middleware.Metrics) ginlib.HandlerFunc {
	return Wrap(m.Handler())
}

// RateLimit returns Gin middleware for token bucket rate limiting.
func RateLimit(cfg middleware.RateLimitConfig) ginlib.HandlerFunc {
	return Wrap(middleware.RateLimit(cfg))
}

// RateLimitByIP returns Gin middleware that rate limits per client IP, as
// resolved by c.ClientIP.
//
//	r.Use(ginconnect.RateLimitByIP(100, 200))
func RateLimitByIP(limit rate.Limit, burst int) ginlib.HandlerFunc {
	return RateLimit(middleware.RateLimitConfig{
		Limit:   limit,
		Burst:   burst,
		KeyFunc: middleware.KeyFuncByIP(),
	})
}

// ServiceAuth returns Gin middleware for service-to-service auth.
func ServiceAuth(cfg middleware.ServiceAuthConfig) ginlib.HandlerFunc {
	return Wrap(middleware.ServiceAuth(cfg))
}

// WrapHandler wraps an http.Handler as a Gin handler.
func WrapHandler(h http.Handler) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
func RegisterPrometheus(r ginlib.IRoutes, path string) {
	if path == "" {
		path = "/metrics"
	}
	r.GET(path, WrapHandler(promhttp.Handler()))
}

// responseWriter exposes Gin's writer as a connect.StatusWriter. Gin
// defers the header until the first body write, so WriteHeader flushes it
// to make a header-only response count as written.
type responseWriter struct {
	ginlib.ResponseWriter
}

func (w responseWriter) WriteHeader(code int) {
	w.ResponseWriter.WriteHeader(code)
	w.ResponseWriter.WriteHeaderNow()
}

func (w responseWriter) BytesWritten() int { return max(w.Size(), 0) }

func (w responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
