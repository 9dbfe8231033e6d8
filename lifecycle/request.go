package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Request is the request model handed to hooks and handlers.
type Request struct {
	app   *App
	scope *Scope
	raw   *http.Request

	id          string
	log         zerolog.Logger
	originalURL string
	decorations map[string]any

	// Body is the parsed request body, set after PreParsing.
	Body any
}

func newRequest(app *App, s *Scope, r *http.Request) *Request {
	id := r.Header.Get(app.config.RequestIDHeader)
	if id == "" {
		id = app.config.GenReqID(r)
	}

	log := app.config.Logger.With().Str("reqId", id).Logger()

	return &Request{
		app:         app,
		scope:       s,
		raw:         r.WithContext(log.WithContext(r.Context())),
		id:          id,
		log:         log,
		originalURL: r.URL.RequestURI(),
		decorations: maps.Clone(s.reqDecors),
	}
}

// ID returns the request ID.
func (r *Request) ID() string { return r.id }

// Log returns the request logger.
func (r *Request) Log() *zerolog.Logger { return &r.log }

// Scope returns the scope that owns the matched route.
func (r *Request) Scope() *Scope { return r.scope }

// Raw returns the underlying request.
func (r *Request) Raw() *http.Request { return r.raw }

// Context returns the context of the underlying request.
func (r *Request) Context() context.Context { return r.raw.Context() }

// SetContext replaces the context of the underlying request.
func (r *Request) SetContext(ctx context.Context) {
	r.raw = r.raw.WithContext(ctx)
}

// Method returns the request method.
func (r *Request) Method() string { return r.raw.Method }

// URL returns the current request URI of the underlying request.
func (r *Request) URL() string { return r.raw.URL.RequestURI() }

// OriginalURL returns the request URI as received.
func (r *Request) OriginalURL() string { return r.originalURL }

// Headers returns the request headers.
func (r *Request) Headers() http.Header { return r.raw.Header }

// Query returns the parsed query string.
func (r *Request) Query() url.Values { return r.raw.URL.Query() }

// Param returns a route parameter.
func (r *Request) Param(name string) string { return chi.URLParam(r.raw, name) }

// Hostname returns the Host header, or X-Forwarded-Host behind a trusted
// proxy.
func (r *Request) Hostname() string {
	if r.app.config.TrustProxy {
		if host := firstHeaderValue(r.raw.Header.Get("X-Forwarded-Host")); host != "" {
			return host
		}
	}
	return r.raw.Host
}

// IP returns the client address. Behind a trusted proxy it is the
// left-most X-Forwarded-For entry.
func (r *Request) IP() string {
	if r.app.config.TrustProxy {
		if chain := forwardedFor(r.raw); len(chain) > 0 {
			return chain[0]
		}
	}
	return remoteIP(r.raw)
}

// IPs returns the socket address followed by the X-Forwarded-For entries,
// nearest first. It is nil unless the proxy is trusted.
func (r *Request) IPs() []string {
	if !r.app.config.TrustProxy {
		return nil
	}
	chain := forwardedFor(r.raw)
	return append([]string{remoteIP(r.raw)}, lo.Reverse(chain)...)
}

// Protocol returns "http" or "https". Behind a trusted proxy
// X-Forwarded-Proto wins.
func (r *Request) Protocol() string {
	if r.app.config.TrustProxy {
		if proto := firstHeaderValue(r.raw.Header.Get("X-Forwarded-Proto")); proto != "" {
			return strings.ToLower(proto)
		}
	}
	if r.raw.TLS != nil {
		return "https"
	}
	return "http"
}

// Decoration returns a request decoration.
func (r *Request) Decoration(name string) (any, bool) {
	v, ok := r.decorations[name]
	return v, ok
}

// SetDecoration assigns a declared request decoration.
func (r *Request) SetDecoration(name string, value any) error {
	if _, ok := r.decorations[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDecoration, name)
	}
	r.decorations[name] = value
	return nil
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func forwardedFor(r *http.Request) []string {
	return lo.FilterMap(strings.Split(r.Header.Get("X-Forwarded-For"), ","), func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
