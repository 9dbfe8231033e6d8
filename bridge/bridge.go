package bridge

import (
	"slices"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
)

type connectKey struct{}

// Registration is one entry of a scope's middleware list. Path already
// carries the scope prefix; it is empty for middleware registered with Use,
// which matches every path and sees it unchanged.
type Registration struct {
	Path    string
	Handler any
}

// Connect is the bridge state of one scope: its registrations and the
// engine composed from them.
type Connect struct {
	scope         *lifecycle.Scope
	config        Config
	registrations []Registration
	engine        *connect.Engine
}

func newConnect(s *lifecycle.Scope, cfg Config) *Connect {
	return &Connect{
		scope:  s,
		config: cfg,
		engine: connect.New().Disable(connect.SettingPoweredBy),
	}
}

// Register installs the bridge on s and returns its state. Scopes created
// below s afterwards inherit the registrations made on s up to that point.
func Register(s *lifecycle.Scope, opts ...Option) (*Connect, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if From(s) != nil {
		return nil, ErrAlreadyRegistered
	}

	c := newConnect(s, cfg)
	s.SetValue(connectKey{}, c)

	s.OnRegister(func(child *lifecycle.Scope) {
		if parent := From(child); parent != nil {
			child.SetValue(connectKey{}, parent.inherit(child))
		}
	})
	s.AddHook(cfg.Hook, handle)
	s.AddSendHook(restorePath)
	s.AddHook(lifecycle.OnResponse, finish)

	return c, nil
}

// Plugin returns a plugin calling Register. Register it with
// lifecycle.WithoutEncapsulation to install the bridge on the calling scope.
//
//	err := app.Register(bridge.Plugin(), lifecycle.WithoutEncapsulation())
func Plugin(opts ...Option) lifecycle.Plugin {
	return func(s *lifecycle.Scope) error {
		_, err := Register(s, opts...)
		return err
	}
}

// From returns the bridge state of s, or nil when the bridge is not
// installed there.
func From(s *lifecycle.Scope) *Connect {
	c, _ := s.Value(connectKey{}).(*Connect)
	return c
}

// Exchange returns the exchange the bridge attached to req, or nil before
// the bridge hook has run.
func Exchange(req *lifecycle.Request) *connect.Exchange {
	return connect.ExchangeFrom(req.Raw())
}

// Use registers h for every path of the scope. Unlike UseAt, h sees the
// full request path, scope prefix included.
func (c *Connect) Use(h any) *Connect {
	return c.add(Registration{Handler: h})
}

// UseAt registers h under path, relative to the scope prefix. h is any
// handler accepted by connect.Engine.Use.
func (c *Connect) UseAt(path string, h any) *Connect {
	return c.add(Registration{Path: lifecycle.JoinPath(c.scope.Prefix(), path), Handler: h})
}

func (c *Connect) add(reg Registration) *Connect {
	if c.scope.App().IsReady() {
		panic("bridge: cannot call Use() after the app is ready")
	}

	mount(c.engine, reg)
	c.registrations = append(c.registrations, reg)
	return c
}

func mount(e *connect.Engine, reg Registration) {
	if reg.Path == "" {
		e.Use(reg.Handler)
		return
	}
	e.UseAt(reg.Path, reg.Handler)
}

// Engine returns the engine of the scope, for settings such as
// connect.SettingCaseSensitive.
func (c *Connect) Engine() *connect.Engine { return c.engine }

// Registrations returns the registrations of the scope in dispatch order.
func (c *Connect) Registrations() []Registration {
	return slices.Clone(c.registrations)
}

// Scope returns the scope the state belongs to.
func (c *Connect) Scope() *lifecycle.Scope { return c.scope }

// inherit builds the state of a new child scope from the registrations
// made so far.
func (c *Connect) inherit(child *lifecycle.Scope) *Connect {
	next := newConnect(child, c.config)
	for name, on := range c.settings() {
		next.engine.Set(name, on)
	}
	for _, reg := range c.registrations {
		mount(next.engine, reg)
	}
	next.registrations = slices.Clone(c.registrations)
	return next
}

func (c *Connect) settings() map[string]bool {
	return map[string]bool{
		connect.SettingPoweredBy:     c.engine.Enabled(connect.SettingPoweredBy),
		connect.SettingCaseSensitive: c.engine.Enabled(connect.SettingCaseSensitive),
		connect.SettingStrictRouting: c.engine.Enabled(connect.SettingStrictRouting),
	}
}
