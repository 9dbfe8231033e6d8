package middleware

import (
	"net"
	"net/http"
	"net/url"

	"github.com/kroma-labs/sentinel-connect/connect"
)

// KeyFunc extracts a rate limiting key from a request. Requests with the
// same key share a bucket.
//
//	middleware.RateLimit(middleware.RateLimitConfig{
//	    Limit:   100,
//	    Burst:   200,
//	    KeyFunc: middleware.KeyFuncByIPAndPath(),
//	})
type KeyFunc func(r *http.Request) string

// KeyFuncByIP keys by client address. Inside a bridged app this is the
// exchange IP, which honors X-Forwarded-For only when the app trusts its
// proxy.
func KeyFuncByIP() KeyFunc {
	return clientIP
}

// KeyFuncByPath keys by the request path as received, before any mount
// prefix was stripped.
func KeyFuncByPath() KeyFunc {
	return originalPath
}

// KeyFuncByIPAndPath combines client address and path.
func KeyFuncByIPAndPath() KeyFunc {
	return func(r *http.Request) string {
		return clientIP(r) + ":" + originalPath(r)
	}
}

// KeyFuncByClientID keys by the client authenticated by ServiceAuth, which
// must run first. Unauthenticated requests share one bucket.
func KeyFuncByClientID() KeyFunc {
	return ClientIDFrom
}

// KeyFuncByClientIDAndPath combines client ID and path, so a client can
// have separate budgets per endpoint.
func KeyFuncByClientIDAndPath() KeyFunc {
	return func(r *http.Request) string {
		return ClientIDFrom(r) + ":" + originalPath(r)
	}
}

// KeyFuncByHeader keys by a request header, such as a tenant ID.
func KeyFuncByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

func clientIP(r *http.Request) string {
	if x := connect.ExchangeFrom(r); x != nil && x.IP != "" {
		return x.IP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func originalPath(r *http.Request) string {
	if x := connect.ExchangeFrom(r); x != nil && x.OriginalURL != "" {
		if u, err := url.ParseRequestURI(x.OriginalURL); err == nil {
			return u.Path
		}
	}
	return r.URL.Path
}
