package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kroma-labs/sentinel-connect/connect"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is a list of origins that are allowed.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string

	// AllowedMethods is a list of HTTP methods allowed.
	AllowedMethods []string

	// AllowedHeaders is a list of headers that are allowed in requests.
	AllowedHeaders []string

	// ExposedHeaders is a list of headers that are exposed to the client.
	ExposedHeaders []string

	// AllowCredentials indicates whether credentials (cookies, auth headers)
	// are allowed in cross-origin requests.
	AllowCredentials bool

	// MaxAge is the maximum age (in seconds) of the preflight cache.
	MaxAge int
}

// DefaultCORSConfig returns a permissive CORS configuration, suitable for
// development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
			http.MethodHead,
			http.MethodPatch,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			connect.RequestIDHeader,
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			connect.RequestIDHeader,
		},
		MaxAge: 86400,
	}
}

// CORS returns middleware that handles Cross-Origin Resource Sharing. A
// preflight request is answered with 204 and ends the exchange.
//
//	c.Use(middleware.CORS(middleware.CORSConfig{
//	    AllowedOrigins:   []string{"https://example.com"},
//	    AllowCredentials: true,
//	}))
func CORS(cfg CORSConfig) connect.HandlerFunc {
	allowAllOrigins := false
	origins := make(map[string]bool)
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAllOrigins = true
		}
		origins[origin] = true
	}

	allowMethods := strings.Join(cfg.AllowedMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowedHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(w http.ResponseWriter, r *http.Request, next connect.Next) {
		h := w.Header()
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAllOrigins || origins[origin]) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}

		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if len(cfg.ExposedHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(nil)
	}
}
