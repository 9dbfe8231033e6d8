package lifecycle

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// App is the root of the scope tree and the http.Handler serving it.
type App struct {
	*Scope

	config Config
	scopes []*Scope
	routes []*route
	router chi.Router

	readyOnce sync.Once
	readyErr  error
	ready     atomic.Bool
}

type route struct {
	method  string
	path    string
	handler Handler
	scope   *Scope
}

// New creates an App.
func New(opts ...Option) *App {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RequestIDHeader == "" {
		cfg.RequestIDHeader = RequestIDHeader
	}
	if cfg.GenReqID == nil {
		cfg.GenReqID = DefaultConfig().GenReqID
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultConfig().BodyLimit
	}

	app := &App{config: cfg}
	app.Scope = newRootScope(app)
	app.scopes = []*Scope{app.Scope}
	return app
}

// Config returns the App configuration.
func (a *App) Config() Config { return a.config }

// Logger returns the root logger.
func (a *App) Logger() zerolog.Logger { return a.config.Logger }

// Ready builds the route table and freezes every scope. It runs once; later
// calls return the first result. ServeHTTP calls it on first use.
func (a *App) Ready() error {
	a.readyOnce.Do(func() {
		a.readyErr = a.build()
		a.ready.Store(true)
	})
	return a.readyErr
}

// IsReady reports whether Ready has run.
func (a *App) IsReady() bool { return a.ready.Load() }

func (a *App) mustNotBeReady(op string) {
	if a.ready.Load() {
		panic(fmt.Sprintf("lifecycle: cannot call %s() after the app is ready", op))
	}
}

func (a *App) build() error {
	r := chi.NewRouter()
	seen := make(map[string]bool, len(a.routes))

	for _, rt := range a.routes {
		key := rt.method + " " + rt.path
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, key)
		}
		seen[key] = true

		h := a.routeHandler(rt)
		if rt.method == "" {
			r.Handle(rt.path, h)
			continue
		}
		r.Method(rt.method, rt.path, h)
	}

	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.notFound)
	a.router = r
	return nil
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.Ready(); err != nil {
		a.config.Logger.Error().Err(err).Msg("app is not ready")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	a.router.ServeHTTP(w, r)
}

func (a *App) routeHandler(rt *route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.serve(w, r, rt.scope, rt.handler)
	})
}

// notFound picks the deepest scope with a not-found handler covering the
// path, so that scope's hooks run for the unmatched request.
func (a *App) notFound(w http.ResponseWriter, r *http.Request) {
	var owner *Scope
	for _, s := range a.scopes {
		if s.notFound == nil || !s.matchesPrefix(r.URL.Path) {
			continue
		}
		if owner == nil || len(s.prefix) > len(owner.prefix) {
			owner = s
		}
	}

	if owner == nil {
		a.serve(w, r, a.Scope, defaultNotFoundHandler)
		return
	}
	a.serve(w, r, owner, owner.notFound)
}

func (a *App) serve(w http.ResponseWriter, r *http.Request, s *Scope, h Handler) {
	start := time.Now()
	req := newRequest(a, s, r)
	rep := newReply(req, w)

	if !a.config.DisableRequestLogging {
		req.Log().Info().
			Str("method", req.Method()).
			Str("url", req.URL()).
			Str("hostname", req.Hostname()).
			Str("remote_address", req.IP()).
			Msg("incoming request")
	}

	a.run(req, rep, h)

	for _, hook := range s.hooks[OnResponse] {
		if err := a.safeHook(hook, req, rep); err != nil {
			req.Log().Error().Err(err).Msg("onResponse hook failed")
		}
	}

	if !a.config.DisableRequestLogging {
		req.Log().Info().
			Int("status", rep.StatusCode()).
			Dur("response_time", time.Since(start)).
			Msg("request completed")
	}
}

func (a *App) run(req *Request, rep *Reply, h Handler) {
	s := req.scope

	if !a.runPhase(s, OnRequest, req, rep) || !a.runPhase(s, PreParsing, req, rep) {
		return
	}

	if err := req.parseBody(); err != nil {
		a.handleError(err, req, rep)
		return
	}

	if !a.runPhase(s, PreValidation, req, rep) || !a.runPhase(s, PreHandler, req, rep) {
		return
	}

	if err := a.safeHook(HookFunc(h), req, rep); err != nil {
		a.handleError(err, req, rep)
		return
	}
	if !rep.Sent() {
		_ = rep.Send(nil)
	}
}

// runPhase reports whether the pipeline should continue.
func (a *App) runPhase(s *Scope, phase Phase, req *Request, rep *Reply) bool {
	for _, hook := range s.hooks[phase] {
		if err := a.safeHook(hook, req, rep); err != nil {
			a.handleError(err, req, rep)
			return false
		}
		if rep.Sent() {
			return false
		}
	}
	return true
}

func (a *App) safeHook(hook HookFunc, req *Request, rep *Reply) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError{value: rec}
		}
	}()
	return hook(req, rep)
}

func (a *App) handleError(err error, req *Request, rep *Reply) {
	if rep.Sent() {
		req.Log().Error().Err(err).Msg("error after the reply was sent")
		return
	}

	rep.err = err
	s := req.scope
	for _, hook := range s.errorHooks {
		hook(req, rep, err)
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				req.Log().Error().Interface("panic", rec).Msg("error handler panicked")
			}
		}()
		s.errorHandler(err, req, rep)
	}()

	if !rep.Sent() {
		defaultErrorHandler(err, req, rep)
	}
}
