package connect

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"
)

// Engine settings understood by Enable and Disable.
const (
	// SettingPoweredBy sends "X-Powered-By: sentinel-connect". Enabled by default.
	SettingPoweredBy = "x-powered-by"

	// SettingCaseSensitive makes path matching case sensitive.
	SettingCaseSensitive = "case sensitive routing"

	// SettingStrictRouting makes routes distinguish a trailing slash.
	SettingStrictRouting = "strict routing"
)

// PoweredBy is the X-Powered-By value sent when SettingPoweredBy is enabled.
const PoweredBy = "sentinel-connect"

// Engine composes connect-style handlers into one callable.
//
// Registration is not safe for concurrent use and must finish before the
// engine serves requests. Serving is safe for concurrent use.
type Engine struct {
	stack    []*layer
	settings map[string]bool
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{
		settings: map[string]bool{SettingPoweredBy: true},
	}
}

// Use appends a handler that matches every path.
func (e *Engine) Use(h any) *Engine {
	return e.UseAt("/", h)
}

// UseAt appends a handler that matches requests under the path prefix.
// The handler sees the request path with the prefix removed.
//
//	app.UseAt("/static", http.FileServer(http.Dir("public")))
func (e *Engine) UseAt(path string, h any) *Engine {
	l := newLayer(h)
	l.path = normalizePath(path)
	e.stack = append(e.stack, l)
	return e
}

// Handle appends a route: h runs only for requests whose method and whole
// remaining path match. An empty method matches any method.
func (e *Engine) Handle(method, path string, h any) *Engine {
	l := newLayer(h)
	l.path = normalizePath(path)
	l.route = true
	l.method = method
	e.stack = append(e.stack, l)
	return e
}

// Get appends a GET route. It also matches HEAD.
func (e *Engine) Get(path string, h any) *Engine { return e.Handle(http.MethodGet, path, h) }

// Post appends a POST route.
func (e *Engine) Post(path string, h any) *Engine { return e.Handle(http.MethodPost, path, h) }

// Put appends a PUT route.
func (e *Engine) Put(path string, h any) *Engine { return e.Handle(http.MethodPut, path, h) }

// Patch appends a PATCH route.
func (e *Engine) Patch(path string, h any) *Engine { return e.Handle(http.MethodPatch, path, h) }

// Delete appends a DELETE route.
func (e *Engine) Delete(path string, h any) *Engine { return e.Handle(http.MethodDelete, path, h) }

// All appends a route matching every method.
func (e *Engine) All(path string, h any) *Engine { return e.Handle("", path, h) }

// Len returns the number of registered layers.
func (e *Engine) Len() int { return len(e.stack) }

// Set assigns a setting.
func (e *Engine) Set(name string, on bool) *Engine {
	e.settings[name] = on
	return e
}

// Enable turns a setting on.
func (e *Engine) Enable(name string) *Engine { return e.Set(name, true) }

// Disable turns a setting off.
//
//	app.Disable(connect.SettingPoweredBy)
func (e *Engine) Disable(name string) *Engine { return e.Set(name, false) }

// Enabled reports whether a setting is on.
func (e *Engine) Enabled(name string) bool { return e.settings[name] }

// Disabled reports whether a setting is off.
func (e *Engine) Disabled(name string) bool { return !e.settings[name] }

// ServeConnect runs the chain. done is called when a handler continues
// past the last layer, with the writer, request and pending error of that
// moment. done is not called when a handler ends the exchange itself.
func (e *Engine) ServeConnect(w http.ResponseWriter, r *http.Request, done Done) {
	if e.Enabled(SettingPoweredBy) {
		w.Header().Set("X-Powered-By", PoweredBy)
	}
	e.handle(w, r, step(done))
}

// ServeHTTP serves the engine as a standalone application. Requests that
// run off the end of the chain get a 404, unhandled errors get a JSON error
// body with the status from ErrorStatus.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w = TrackWriter(w)
	x := ExchangeFrom(r)
	if x == nil {
		x = NewExchange(FieldsFromRequest(r))
		w, r = Attach(w, r, x)
	}
	defer x.Finish()

	res := e.Run(w, r)
	switch {
	case res.Ended:
	case res.Err != nil:
		writeFinal(res.Writer, ErrorStatus(res.Err), res.Err)
	default:
		writeFinal(res.Writer, http.StatusNotFound, nil, "Cannot "+r.Method+" "+x.OriginalURL)
	}
}

// Result is the outcome of Run.
type Result struct {
	// Writer and Request are the ones current when the chain ended.
	Writer  http.ResponseWriter
	Request *http.Request

	// Err is the error pending at the end of the chain, or the request
	// context error if the request ended first.
	Err error

	// Ended is set when a handler wrote the response without continuing.
	Ended bool
}

// Run serves the chain and waits for its outcome. It returns when the
// chain runs off its end, when a handler has started the response without
// continuing, or when the request context is done. Handlers may continue
// or write from another goroutine. Once Run has returned on a done
// context, writes from the chain are dropped.
func (e *Engine) Run(w http.ResponseWriter, r *http.Request) Result {
	rw := newRunWriter(w)
	results := make(chan Result, 1)
	e.ServeConnect(rw, r, func(w2 http.ResponseWriter, r2 *http.Request, err error) {
		select {
		case results <- Result{Writer: w2, Request: r2, Err: err}:
		default:
		}
	})

	select {
	case res := <-results:
		return res
	default:
	}

	select {
	case res := <-results:
		return res
	case <-rw.started:
		select {
		case res := <-results:
			return res
		default:
		}
		return Result{Writer: w, Request: r, Ended: true}
	case <-r.Context().Done():
		rw.detach()
		return Result{Writer: w, Request: r, Err: r.Context().Err()}
	}
}

func (e *Engine) handle(w http.ResponseWriter, r *http.Request, out step) {
	caseSensitive := e.Enabled(SettingCaseSensitive)
	strict := e.Enabled(SettingStrictRouting)

	idx := 0
	var next step
	next = func(w http.ResponseWriter, r *http.Request, err error) {
		for idx < len(e.stack) {
			l := e.stack[idx]
			idx++

			if l.handlesError != (err != nil) {
				continue
			}
			rest, ok := l.match(r, caseSensitive, strict)
			if !ok {
				continue
			}
			e.invoke(l, rest, w, r, err, next)
			return
		}
		out(w, r, err)
	}
	next(w, r, nil)
}

// invoke runs one layer. The prefix is stripped from the shared URL for the
// duration of the layer and restored when the layer continues.
func (e *Engine) invoke(l *layer, rest string, w http.ResponseWriter, r *http.Request, err error, next step) {
	path, rawPath := r.URL.Path, r.URL.RawPath
	strip := !l.route && l.path != "/"
	if strip {
		stripPrefix(r.URL, l.path, rest)
	}

	var continued atomic.Bool
	k := func(w2 http.ResponseWriter, r2 *http.Request, err2 error) {
		if !continued.CompareAndSwap(false, true) {
			return
		}
		if strip {
			r2.URL.Path, r2.URL.RawPath = path, rawPath
		}
		next(w2, r2, err2)
	}

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		perr := newPanicError(rec)
		if continued.Load() {
			if x := ExchangeFrom(r); x != nil {
				x.Log.Error().Err(perr).Str("stack", string(perr.Stack)).Msg("panic after handler continued")
			}
			return
		}
		k(w, r, perr)
	}()

	l.serve(w, r, err, k)
}

func (l *layer) match(r *http.Request, caseSensitive, strict bool) (string, bool) {
	if l.route && l.method != "" && l.method != r.Method &&
		(l.method != http.MethodGet || r.Method != http.MethodHead) {
		return "", false
	}

	p := r.URL.Path
	if p == "" {
		p = "/"
	}

	if l.route {
		want := l.path
		if !strict {
			p, want = trimSlash(p), trimSlash(want)
		}
		return p, equalPath(p, want, caseSensitive)
	}

	if l.path == "/" {
		return p, true
	}
	if len(p) < len(l.path) || !equalPath(p[:len(l.path)], l.path, caseSensitive) {
		return "", false
	}
	rest := p[len(l.path):]
	if rest == "" {
		return "/", true
	}
	if rest[0] != '/' {
		return "", false
	}
	return rest, true
}

func stripPrefix(u *url.URL, prefix, rest string) {
	u.Path = rest
	if u.RawPath == "" {
		return
	}
	if len(u.RawPath) >= len(prefix) && strings.EqualFold(u.RawPath[:len(prefix)], prefix) {
		u.RawPath = u.RawPath[len(prefix):]
		if u.RawPath == "" {
			u.RawPath = "/"
		}
		return
	}
	u.RawPath = ""
}

func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}

func trimSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}

func equalPath(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

type finalError struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func writeFinal(w http.ResponseWriter, status int, err error, message ...string) {
	body := finalError{StatusCode: status, Error: http.StatusText(status)}
	switch {
	case len(message) > 0:
		body.Message = message[0]
	case err != nil:
		body.Message = PublicMessage(err)
	default:
		body.Message = http.StatusText(status)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
