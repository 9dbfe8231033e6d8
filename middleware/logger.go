package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/rs/zerolog"
)

const defaultMaxBodyLogSize = 4 * 1024

// LoggerConfig configures the logging middleware.
type LoggerConfig struct {
	// Logger overrides the request logger bound to the request context.
	Logger *zerolog.Logger

	// ServiceName is added to every entry when set.
	ServiceName string

	// SkipPaths are paths that should not be logged.
	// Useful for health check endpoints that are called frequently.
	SkipPaths []string

	// LogRequestBody enables logging of the request body (use with caution).
	// The body is buffered up to MaxBodyLogSize and replaced with a reader
	// over the same bytes.
	LogRequestBody bool

	// MaxBodyLogSize limits the size of logged bodies (default: 4KB).
	MaxBodyLogSize int
}

// Logger returns middleware that logs one entry per request once the
// response is complete: method, path, status, duration, bytes, client
// address, user agent and request ID. 4xx responses log at warn, 5xx at
// error.
//
//	c.Use(middleware.Logger(middleware.LoggerConfig{
//	    SkipPaths: []string{"/livez", "/readyz"},
//	}))
func Logger(cfg LoggerConfig) connect.HandlerFunc {
	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	maxBodySize := cfg.MaxBodyLogSize
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodyLogSize
	}

	return func(w http.ResponseWriter, r *http.Request, next connect.Next) {
		path := originalPath(r)
		if skipPaths[path] {
			next(nil)
			return
		}

		start := time.Now()

		var requestBody []byte
		if cfg.LogRequestBody && r.Body != nil && r.Body != http.NoBody {
			requestBody, _ = io.ReadAll(io.LimitReader(r.Body, int64(maxBodySize)))
			r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(requestBody), r.Body), Closer: r.Body}
		}

		logger := zerolog.Ctx(r.Context())
		if cfg.Logger != nil {
			logger = cfg.Logger
		}

		done := func() {
			status, written := http.StatusOK, 0
			if sw, ok := connect.StatusWriterOf(w); ok {
				status, written = sw.Status(), sw.BytesWritten()
			}

			event := logger.Info()
			if status >= 400 {
				event = logger.Warn()
			}
			if status >= 500 {
				event = logger.Error()
			}

			if cfg.ServiceName != "" {
				event.Str("service", cfg.ServiceName)
			}
			event.
				Str("method", r.Method).
				Str("path", path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Int("bytes", written).
				Str("remote_addr", clientIP(r)).
				Str("user_agent", r.UserAgent())

			if id := RequestIDFrom(r); id != "" {
				event.Str("request_id", id)
			}
			if len(requestBody) > 0 {
				event.Bytes("request_body", requestBody)
			}

			event.Msg("request completed")
		}

		if connect.AfterResponse(r, done) {
			next(nil)
			return
		}
		next(nil)
		done()
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
