package middleware

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Response is the JSON envelope written by this package.
//
//	{
//	  "errors": [{"field": "rate_limit", "message": "too many requests"}],
//	  "message": "rate limit exceeded"
//	}
type Response[T any] struct {
	Data    T       `json:"data,omitempty"`
	Errors  []Error `json:"errors,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Error is a single field-level error.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes response with the given status. An encoding failure is
// logged with the logger bound to the request context.
func WriteJSON[T any](w http.ResponseWriter, r *http.Request, statusCode int, response Response[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("failed to encode JSON response")
	}
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message string, errors ...Error) {
	WriteJSON(w, r, statusCode, Response[any]{
		Errors:  errors,
		Message: message,
	})
}
