package httpserver

import (
	"net/http"
	"net/http/pprof"

	"github.com/kroma-labs/sentinel-connect/bridge"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
)

// PprofConfig configures the pprof endpoints.
type PprofConfig struct {
	// Prefix is the URL prefix for pprof endpoints.
	// Default: "/debug/pprof"
	Prefix string

	// EnableAuth requires HTTP Basic credentials on every endpoint.
	EnableAuth bool

	// Username for basic auth (required when EnableAuth is true).
	Username string

	// Password for basic auth (required when EnableAuth is true).
	Password string
}

// DefaultPprofConfig returns default pprof configuration.
func DefaultPprofConfig() PprofConfig {
	return PprofConfig{
		Prefix: "/debug/pprof",
	}
}

// RegisterPprof registers the pprof endpoints as a plugin under
// cfg.Prefix: the index and named profiles, cmdline, profile, symbol and
// trace. With EnableAuth the plugin scope runs middleware.BasicAuth
// through the bridge, so the credentials never leak to sibling routes.
//
//	if err := httpserver.RegisterPprof(app.Scope, httpserver.PprofConfig{
//	    EnableAuth: true,
//	    Username:   "admin",
//	    Password:   "secret",
//	}); err != nil {
//	    return err
//	}
func RegisterPprof(s *lifecycle.Scope, cfg PprofConfig) error {
	if cfg.Prefix == "" {
		cfg.Prefix = "/debug/pprof"
	}

	return s.Register(func(p *lifecycle.Scope) error {
		if cfg.EnableAuth && cfg.Username != "" && cfg.Password != "" {
			c := bridge.From(p)
			if c == nil {
				var err error
				if c, err = bridge.Register(p); err != nil {
					return err
				}
			}
			c.Use(middleware.BasicAuth("pprof", cfg.Username, cfg.Password))
		}

		p.Get("/", serveStd(pprof.Index))
		p.Get("/{profile}", serveStd(pprof.Index))
		p.Get("/cmdline", serveStd(pprof.Cmdline))
		p.Get("/profile", serveStd(pprof.Profile))
		p.Get("/symbol", serveStd(pprof.Symbol))
		p.Post("/symbol", serveStd(pprof.Symbol))
		p.Get("/trace", serveStd(pprof.Trace))
		return nil
	}, lifecycle.WithPrefix(cfg.Prefix))
}

// serveStd adapts a net/http handler to a route handler writing to the raw
// response.
func serveStd(h http.HandlerFunc) lifecycle.Handler {
	return func(req *lifecycle.Request, rep *lifecycle.Reply) error {
		h(rep.Raw(), req.Raw())
		return nil
	}
}
