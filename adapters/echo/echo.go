// Package echo runs connect middleware inside an Echo server.
//
//	e := echo.New()
//	e.Use(echoconnect.Wrap(middleware.RequestID()))
//	e.Use(echoconnect.Tracing(middleware.DefaultTracingConfig()))
//	e.Use(echoconnect.RateLimitByIP(100, 200))
//
// A chain error left unhandled becomes an *echo.HTTPError with the error's
// status and public message, and the original error as Internal. It is
// rendered with c.Error before the middleware returns, the way Echo's own
// logger does, so connect.AfterResponse functions see the final status.
package echo

import (
	"net/http"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/middleware"
	echolib "github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Middleware returns Echo middleware running e for every request.
func Middleware(e *connect.Engine) echolib.MiddlewareFunc {
	return func(next echolib.HandlerFunc) echolib.HandlerFunc {
		return func(c echolib.Context) error {
			f := connect.FieldsFromRequest(c.Request())
			f.IP = c.RealIP()
			f.IPs = []string{f.IP}
			x := connect.NewExchange(f)
			defer x.Finish()

			w, r := connect.Attach(responseWriter{res: c.Response()}, c.Request(), x)
			res := e.Run(w, r)
			switch {
			case res.Err != nil:
				herr := echolib.NewHTTPError(connect.ErrorStatus(res.Err), connect.PublicMessage(res.Err)).
					SetInternal(res.Err)
				c.Error(herr)
				return herr
			case res.Ended:
				return nil
			}

			c.SetRequest(res.Request)
			if err := next(c); err != nil {
				c.Error(err)
				return err
			}
			return nil
		}
	}
}

// Wrap returns Echo middleware running the given connect handlers in
// order. Each handler is anything connect.Engine.Use accepts.
func Wrap(handlers ...any) echolib.MiddlewareFunc {
	e := connect.New().Disable(connect.SettingPoweredBy)
	for _, h := range handlers {
		e.Use(h)
	}
	return Middleware(e)
}

// RequestID returns Echo middleware that generates or forwards X-Request-ID.
func RequestID() echolib.MiddlewareFunc {
	return Wrap(middleware.RequestID())
}

// Logger returns Echo middleware for structured request logging.
func Logger(cfg middleware.LoggerConfig) echolib.MiddlewareFunc {
	return Wrap(middleware.Logger(cfg))
}

// Tracing returns Echo middleware for OpenTelemetry tracing.
func Tracing(cfg middleware.TracingConfig) echolib.MiddlewareFunc {
	return Wrap(middleware.Tracing(cfg))
}

// CORS returns Echo middleware for CORS handling.
func CORS(cfg middleware.CORSConfig) echolib.MiddlewareFunc {
	return Wrap(middleware.CORS(cfg))
}

// Metrics returns Echo middleware recording OTel request metrics.
func Metrics(m *middleware.Metrics) echolib.MiddlewareFunc {
	return Wrap(m.Handler())
}

// RateLimit returns Echo middleware for token bucket rate limiting.
func RateLimit(cfg middleware.RateLimitConfig) echolib.MiddlewareFunc {
	return Wrap(middleware.RateLimit(cfg))
}

// RateLimitByIP returns Echo middleware that rate limits per client IP, as
// resolved by c.RealIP.
func RateLimitByIP(limit rate.Limit, burst int) echolib.MiddlewareFunc {
	return RateLimit(middleware.RateLimitConfig{
		Limit:   limit,
		Burst:   burst,
		KeyFunc: middleware.KeyFuncByIP(),
	})
}

// ServiceAuth returns Echo middleware for service-to-service auth.
func ServiceAuth(cfg middleware.ServiceAuthConfig) echolib.MiddlewareFunc {
	return Wrap(middleware.ServiceAuth(cfg))
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
func RegisterPrometheus(e *echolib.Echo, path string) {
	if path == "" {
		path = "/metrics"
	}
	e.GET(path, echolib.WrapHandler(promhttp.Handler()))
}

// responseWriter exposes Echo's response as a connect.StatusWriter.
type responseWriter struct {
	res *echolib.Response
}

func (w responseWriter) Header() http.Header { return w.res.Header() }

func (w responseWriter) WriteHeader(code int) { w.res.WriteHeader(code) }

func (w responseWriter) Write(b []byte) (int, error) { return w.res.Write(b) }

func (w responseWriter) Status() int { return w.res.Status }

func (w responseWriter) BytesWritten() int { return int(w.res.Size) }

func (w responseWriter) Written() bool { return w.res.Committed }

func (w responseWriter) Unwrap() http.ResponseWriter { return w.res.Writer }

func (w responseWriter) Flush() { w.res.Flush() }
