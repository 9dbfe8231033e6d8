package middleware

import (
	"errors"
	"net/http"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/rs/zerolog"
)

// FieldError is implemented by errors that name the offending field.
type FieldError interface {
	Field() string
}

// ErrorsConfig configures the error renderer.
type ErrorsConfig struct {
	// Expose writes the error text of 5xx errors. Off by default so
	// internal details do not leak; 4xx messages are always written.
	Expose bool

	// PassThrough hands the error on with next instead of writing it, after
	// logging. Use it when the host renders errors itself.
	PassThrough bool
}

// Errors returns an error handler that logs chain errors with the request
// logger and renders them as a Response envelope. Panics recovered by the
// engine are logged with their stack.
//
//	engine.Use(middleware.Errors(middleware.ErrorsConfig{}))
func Errors(cfg ErrorsConfig) connect.ErrorHandlerFunc {
	return func(err error, w http.ResponseWriter, r *http.Request, next connect.Next) {
		status := connect.ErrorStatus(err)
		logger := zerolog.Ctx(r.Context())

		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		default:
			event = logger.Warn()
		}

		var perr *connect.PanicError
		if errors.As(err, &perr) {
			event = logger.Error().
				Interface("panic", perr.Value).
				Str("stack", string(perr.Stack))
		}

		event.Err(err).
			Str("method", r.Method).
			Str("path", originalPath(r)).
			Int("status", status).
			Msg("request failed")

		if cfg.PassThrough || connect.Written(w) {
			next(err)
			return
		}

		message := err.Error()
		if status >= http.StatusInternalServerError && !cfg.Expose {
			message = "internal server error"
		}

		var details []Error
		var fe FieldError
		if errors.As(err, &fe) {
			details = append(details, Error{Field: fe.Field(), Message: err.Error()})
		}

		WriteError(w, r, status, message, details...)
	}
}
