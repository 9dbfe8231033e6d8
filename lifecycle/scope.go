package lifecycle

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Phase names a step of the request pipeline.
type Phase string

// Pipeline phases, in execution order.
const (
	OnRequest     Phase = "onRequest"
	PreParsing    Phase = "preParsing"
	PreValidation Phase = "preValidation"
	PreHandler    Phase = "preHandler"
	OnSend        Phase = "onSend"
	OnResponse    Phase = "onResponse"
	OnError       Phase = "onError"
)

// RequestPhases are the phases that run before the route handler.
var RequestPhases = []Phase{OnRequest, PreParsing, PreValidation, PreHandler}

// HookFunc is a request phase or OnResponse hook.
type HookFunc func(req *Request, rep *Reply) error

// SendHookFunc is an OnSend hook. It may replace the serialized payload.
type SendHookFunc func(req *Request, rep *Reply, payload []byte) ([]byte, error)

// ErrorHookFunc is an OnError hook. It observes the error before the error
// handler runs.
type ErrorHookFunc func(req *Request, rep *Reply, err error)

// Handler handles a route.
type Handler func(req *Request, rep *Reply) error

// ErrorHandler turns an error into a reply.
type ErrorHandler func(err error, req *Request, rep *Reply)

// Plugin configures a scope.
type Plugin func(s *Scope) error

// ContentTypeParser parses a request body of one content type.
type ContentTypeParser func(req *Request, body []byte) (any, error)

// Scope is an encapsulation context: a node of the plugin tree with its own
// hooks, values, decorations and routes.
type Scope struct {
	app    *App
	parent *Scope
	prefix string

	hooks       map[Phase][]HookFunc
	sendHooks   []SendHookFunc
	errorHooks  []ErrorHookFunc
	onRegister  []func(child *Scope)
	values      map[any]any
	decorations map[string]any
	reqDecors   map[string]any
	parsers     map[string]ContentTypeParser

	errorHandler ErrorHandler
	notFound     Handler
}

func newRootScope(app *App) *Scope {
	return &Scope{
		app:         app,
		hooks:       map[Phase][]HookFunc{},
		values:      map[any]any{},
		decorations: map[string]any{},
		reqDecors:   map[string]any{},
		parsers: map[string]ContentTypeParser{
			"application/json": ParseJSON,
			"text/plain":       ParseText,
		},
		errorHandler: defaultErrorHandler,
	}
}

func (s *Scope) child(prefix string) *Scope {
	c := &Scope{
		app:          s.app,
		parent:       s,
		prefix:       JoinPath(s.prefix, prefix),
		hooks:        make(map[Phase][]HookFunc, len(s.hooks)),
		sendHooks:    slices.Clone(s.sendHooks),
		errorHooks:   slices.Clone(s.errorHooks),
		onRegister:   slices.Clone(s.onRegister),
		values:       maps.Clone(s.values),
		decorations:  maps.Clone(s.decorations),
		reqDecors:    maps.Clone(s.reqDecors),
		parsers:      maps.Clone(s.parsers),
		errorHandler: s.errorHandler,
	}
	if c.prefix == "/" {
		c.prefix = ""
	}
	for phase, hooks := range s.hooks {
		c.hooks[phase] = slices.Clone(hooks)
	}
	s.app.scopes = append(s.app.scopes, c)

	for _, fn := range c.onRegister {
		fn(c)
	}
	return c
}

// App returns the application the scope belongs to.
func (s *Scope) App() *App { return s.app }

// Parent returns the enclosing scope, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Prefix returns the route prefix of the scope. The root prefix is empty.
func (s *Scope) Prefix() string { return s.prefix }

// RegisterOption configures Register.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	prefix string
	shared bool
}

// WithPrefix prefixes the routes of the plugin's scope.
func WithPrefix(prefix string) RegisterOption {
	return func(c *registerConfig) {
		c.prefix = prefix
	}
}

// WithoutEncapsulation runs the plugin in the registering scope itself, so
// its hooks, values and routes belong to that scope. A prefix is ignored.
func WithoutEncapsulation() RegisterOption {
	return func(c *registerConfig) {
		c.shared = true
	}
}

// Register runs plugin, by default in a new child scope.
//
//	err := app.Register(func(s *lifecycle.Scope) error {
//	    s.Get("/", index)
//	    return nil
//	}, lifecycle.WithPrefix("/v1"))
func (s *Scope) Register(plugin Plugin, opts ...RegisterOption) error {
	s.app.mustNotBeReady("Register")

	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	target := s
	if !cfg.shared {
		target = s.child(cfg.prefix)
	}
	if err := plugin(target); err != nil {
		return fmt.Errorf("lifecycle: plugin: %w", err)
	}
	return nil
}

// OnRegister calls fn for every child scope created below s from now on,
// before the child's plugin runs.
func (s *Scope) OnRegister(fn func(child *Scope)) *Scope {
	s.app.mustNotBeReady("OnRegister")
	s.onRegister = append(s.onRegister, fn)
	return s
}

// AddHook adds a hook to a request phase or to OnResponse. OnSend and
// OnError hooks have their own methods.
func (s *Scope) AddHook(phase Phase, fn HookFunc) *Scope {
	s.app.mustNotBeReady("AddHook")
	switch phase {
	case OnRequest, PreParsing, PreValidation, PreHandler, OnResponse:
	default:
		panic(fmt.Sprintf("lifecycle: AddHook() does not accept phase %q", phase))
	}
	s.hooks[phase] = append(s.hooks[phase], fn)
	return s
}

// AddSendHook adds an OnSend hook.
func (s *Scope) AddSendHook(fn SendHookFunc) *Scope {
	s.app.mustNotBeReady("AddSendHook")
	s.sendHooks = append(s.sendHooks, fn)
	return s
}

// AddErrorHook adds an OnError hook.
func (s *Scope) AddErrorHook(fn ErrorHookFunc) *Scope {
	s.app.mustNotBeReady("AddErrorHook")
	s.errorHooks = append(s.errorHooks, fn)
	return s
}

// Hooks returns the hooks of a phase, in execution order.
func (s *Scope) Hooks(phase Phase) []HookFunc {
	return slices.Clone(s.hooks[phase])
}

// SetErrorHandler sets the error handler of the scope and of child scopes
// created afterwards.
func (s *Scope) SetErrorHandler(h ErrorHandler) *Scope {
	s.app.mustNotBeReady("SetErrorHandler")
	s.errorHandler = h
	return s
}

// SetNotFoundHandler handles unmatched requests under the scope prefix. The
// deepest scope with a not-found handler wins, and its hooks run.
func (s *Scope) SetNotFoundHandler(h Handler) *Scope {
	s.app.mustNotBeReady("SetNotFoundHandler")
	s.notFound = h
	return s
}

// SetValue stores a value on the scope. Child scopes created afterwards
// start with a copy of the scope's values.
func (s *Scope) SetValue(key, value any) *Scope {
	s.values[key] = value
	return s
}

// Value returns a value stored on the scope or inherited by it.
func (s *Scope) Value(key any) any {
	return s.values[key]
}

// Decorate adds a named scope property.
func (s *Scope) Decorate(name string, value any) error {
	if _, ok := s.decorations[name]; ok {
		return fmt.Errorf("%w: %q", ErrDecorationExists, name)
	}
	s.decorations[name] = value
	return nil
}

// Decoration returns a named scope property.
func (s *Scope) Decoration(name string) (any, bool) {
	v, ok := s.decorations[name]
	return v, ok
}

// DecorateRequest declares a request property with its initial value.
// Every request handled in the scope gets its own copy.
func (s *Scope) DecorateRequest(name string, initial any) error {
	if _, ok := s.reqDecors[name]; ok {
		return fmt.Errorf("%w: %q", ErrDecorationExists, name)
	}
	s.reqDecors[name] = initial
	return nil
}

// AddContentTypeParser sets the body parser of a media type.
//
//	app.AddContentTypeParser("application/x-www-form-urlencoded", lifecycle.ParseForm)
func (s *Scope) AddContentTypeParser(mediaType string, p ContentTypeParser) *Scope {
	s.parsers[strings.ToLower(mediaType)] = p
	return s
}

// Route declares a route. The path is joined to the scope prefix and uses
// chi patterns ("/users/{id}"). An empty method matches every method.
func (s *Scope) Route(method, path string, h Handler) *Scope {
	s.app.mustNotBeReady("Route")
	s.app.routes = append(s.app.routes, &route{
		method:  method,
		path:    JoinPath(s.prefix, path),
		handler: h,
		scope:   s,
	})
	return s
}

// Get declares a GET route.
func (s *Scope) Get(path string, h Handler) *Scope { return s.Route(http.MethodGet, path, h) }

// Post declares a POST route.
func (s *Scope) Post(path string, h Handler) *Scope { return s.Route(http.MethodPost, path, h) }

// Put declares a PUT route.
func (s *Scope) Put(path string, h Handler) *Scope { return s.Route(http.MethodPut, path, h) }

// Patch declares a PATCH route.
func (s *Scope) Patch(path string, h Handler) *Scope { return s.Route(http.MethodPatch, path, h) }

// Delete declares a DELETE route.
func (s *Scope) Delete(path string, h Handler) *Scope { return s.Route(http.MethodDelete, path, h) }

// All declares a route for every method.
func (s *Scope) All(path string, h Handler) *Scope { return s.Route("", path, h) }

// JoinPath joins a scope prefix and a path. A "/" path under a non-empty
// prefix collapses to the prefix itself.
//
//	JoinPath("", "/")          // "/"
//	JoinPath("/api", "/")      // "/api"
//	JoinPath("/api", "/users") // "/api/users"
func JoinPath(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	if prefix == "" {
		if path == "" {
			return "/"
		}
		return path
	}
	if path == "" || path == "/" {
		return prefix
	}
	return prefix + path
}

func (s *Scope) matchesPrefix(path string) bool {
	if s.prefix == "" {
		return true
	}
	return path == s.prefix || strings.HasPrefix(path, s.prefix+"/")
}
