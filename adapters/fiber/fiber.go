// Package fiber runs connect middleware inside a Fiber app.
//
//	app := fiber.New()
//	app.Use(fiberconnect.Wrap(middleware.RequestID()))
//	app.Use(fiberconnect.Logger(middleware.LoggerConfig{}))
//
// Fiber is not built on net/http. The chain runs through Fiber's adaptor
// package against a converted request, and a chain that continues hands
// its request method, URI and headers back to Fiber. Exchange locals stay
// reachable from Fiber handlers with Exchange.
//
// A chain error left unhandled is turned into a *fiber.Error with the
// error's status and public message and passed to the app's error handler
// right away, the way Fiber's own logger does, so connect.AfterResponse
// functions see the final status. Panics inside connect handlers are
// recovered by the engine and rendered as 500.
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const exchangeLocal = "connect.exchange"

// Middleware returns a Fiber handler running e for every request.
func Middleware(e *connect.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			x        *connect.Exchange
			rw       *responseWriter
			chainErr error
		)

		h := adaptor.HTTPMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				f := connect.FieldsFromRequest(r)
				f.IP = c.IP()
				f.IPs = []string{f.IP}
				if ips := c.IPs(); len(ips) > 0 {
					f.IPs = ips
				}
				x = connect.NewExchange(f)
				c.Locals(exchangeLocal, x)

				rw = &responseWriter{ResponseWriter: w, c: c, status: http.StatusOK}
				w2, r2 := connect.Attach(rw, r, x)
				res := e.Run(w2, r2)
				switch {
				case res.Err != nil:
					chainErr = res.Err
				case res.Ended:
				default:
					next.ServeHTTP(w2, res.Request)
				}
			})
		})

		err := h(c)
		if rw != nil {
			rw.settled = true
		}
		if chainErr != nil {
			err = fiber.NewError(connect.ErrorStatus(chainErr), connect.PublicMessage(chainErr))
		}
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		if x != nil {
			x.Finish()
		}
		return nil
	}
}

// Exchange returns the exchange of the innermost connect middleware that
// ran for c, or nil.
//
//	app.Get("/me", func(c *fiber.Ctx) error {
//	    id, _ := fiberconnect.Exchange(c).Get(middleware.ClientIDLocal)
//	    return c.SendString(id.(string))
//	})
func Exchange(c *fiber.Ctx) *connect.Exchange {
	x, _ := c.Locals(exchangeLocal).(*connect.Exchange)
	return x
}

// Wrap returns a Fiber handler running the given connect handlers in
// order. Each handler is anything connect.Engine.Use accepts.
func Wrap(handlers ...any) fiber.Handler {
	e := connect.New().Disable(connect.SettingPoweredBy)
	for _, h := range handlers {
		e.Use(h)
	}
	return Middleware(e)
}

// RequestID returns Fiber middleware that generates or forwards
// X-Request-ID.
func RequestID() fiber.Handler {
	return Wrap(middleware.RequestID())
}

// Logger returns Fiber middleware for structured request logging.
func Logger(cfg middleware.LoggerConfig) fiber.Handler {
	return Wrap(middleware.Logger(cfg))
}

// Tracing returns Fiber middleware for OpenTelemetry tracing.
func Tracing(cfg middleware.TracingConfig) fiber.Handler {
	return Wrap(middleware.Tracing(cfg))
}

// CORS returns Fiber middleware for CORS handling.
func CORS(cfg middleware.CORSConfig) fiber.Handler {
	return Wrap(middleware.CORS(cfg))
}

// Metrics returns Fiber middleware recording OTel request metrics.
func Metrics(m *middleware.Metrics) fiber.Handler {
	return Wrap(m.Handler())
}

// RateLimit returns Fiber middleware for token bucket rate limiting.
func RateLimit(cfg middleware.RateLimitConfig) fiber.Handler {
	return Wrap(middleware.RateLimit(cfg))
}

// RateLimitByIP returns Fiber middleware that rate limits per client IP, as
// resolved by c.IP.
func RateLimitByIP(limit rate.Limit, burst int) fiber.Handler {
	return RateLimit(middleware.RateLimitConfig{
		Limit:   limit,
		Burst:   burst,
		KeyFunc: middleware.KeyFuncByIP(),
	})
}

// ServiceAuth returns Fiber middleware for service-to-service auth.
func ServiceAuth(cfg middleware.ServiceAuthConfig) fiber.Handler {
	return Wrap(middleware.ServiceAuth(cfg))
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
func RegisterPrometheus(r fiber.Router, path string) {
	if path == "" {
		path = "/metrics"
	}
	r.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
}

// responseWriter records what the chain wrote to the adaptor's writer.
// The adaptor copies the status and headers to Fiber when the chain
// returns; from then on Fiber's response is the one to read.
type responseWriter struct {
	http.ResponseWriter
	c       *fiber.Ctx
	status  int
	bytes   int
	written bool
	settled bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseWriter) Status() int {
	if w.settled {
		return w.c.Response().StatusCode()
	}
	return w.status
}

func (w *responseWriter) BytesWritten() int {
	if w.settled {
		return len(w.c.Response().Body())
	}
	return w.bytes
}

func (w *responseWriter) Written() bool { return w.written }

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
