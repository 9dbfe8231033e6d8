package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/kroma-labs/sentinel-connect/connect"
)

// RequestIDLocal is the exchange local holding the request ID.
const RequestIDLocal = "requestId"

// RequestID returns middleware that echoes the request ID in the
// X-Request-ID response header and stores it as an exchange local.
//
// The ID is the exchange ID when the request carries an exchange, else the
// incoming X-Request-ID header or a new UUID.
func RequestID() connect.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next connect.Next) {
		x := connect.ExchangeFrom(r)

		var id string
		if x != nil {
			id = x.ID
		}
		if id == "" {
			id = r.Header.Get(connect.RequestIDHeader)
		}
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(connect.RequestIDHeader, id)
		if x != nil {
			x.Set(RequestIDLocal, id)
		}
		next(nil)
	}
}

// RequestIDFrom returns the request ID stored by RequestID, or the
// exchange ID when RequestID did not run.
func RequestIDFrom(r *http.Request) string {
	x := connect.ExchangeFrom(r)
	if x == nil {
		return ""
	}
	if id, ok := x.Get(RequestIDLocal); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return x.ID
}
