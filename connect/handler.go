package connect

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
)

// Next continues the chain. A non-nil error skips the remaining normal
// handlers and runs the next matching error handler.
type Next func(err error)

// HandlerFunc is a connect-style handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, next Next)

// ErrorHandlerFunc is a connect-style error handler. It only runs while an
// error is pending.
type ErrorHandlerFunc func(err error, w http.ResponseWriter, r *http.Request, next Next)

// Middleware is the standard net/http middleware shape. When it calls the
// wrapped handler, the writer and request it passes replace the current
// ones for the rest of the chain.
type Middleware func(http.Handler) http.Handler

// Done receives the outcome of a chain that ran off its end.
type Done func(w http.ResponseWriter, r *http.Request, err error)

// step is the internal continuation. It carries the writer and request so
// std middleware can replace them.
type step func(w http.ResponseWriter, r *http.Request, err error)

type layer struct {
	path         string
	route        bool
	method       string
	handlesError bool
	serve        func(w http.ResponseWriter, r *http.Request, err error, next step)
}

func newLayer(h any) *layer {
	switch h := h.(type) {
	case nil:
		panic("connect: handler must not be nil")
	case *Engine:
		return &layer{serve: func(w http.ResponseWriter, r *http.Request, _ error, next step) {
			h.handle(w, r, next)
		}}
	case HandlerFunc:
		return handlerLayer(h)
	case func(http.ResponseWriter, *http.Request, Next):
		return handlerLayer(h)
	case ErrorHandlerFunc:
		return errorLayer(h)
	case func(error, http.ResponseWriter, *http.Request, Next):
		return errorLayer(h)
	case Middleware:
		return middlewareLayer(h)
	case func(http.Handler) http.Handler:
		return middlewareLayer(h)
	case http.Handler:
		return terminalLayer(h)
	case func(http.ResponseWriter, *http.Request):
		return terminalLayer(http.HandlerFunc(h))
	default:
		panic(fmt.Sprintf("connect: Use() requires a handler but got a %T", h))
	}
}

func handlerLayer(h HandlerFunc) *layer {
	return &layer{serve: func(w http.ResponseWriter, r *http.Request, _ error, next step) {
		h(w, r, func(err error) { next(w, r, err) })
	}}
}

func errorLayer(h ErrorHandlerFunc) *layer {
	return &layer{
		handlesError: true,
		serve: func(w http.ResponseWriter, r *http.Request, err error, next step) {
			h(err, w, r, func(err error) { next(w, r, err) })
		},
	}
}

// middlewareLayer treats a middleware that returns without calling the
// wrapped handler as having ended the exchange, the way net/http would.
func middlewareLayer(m Middleware) *layer {
	return &layer{serve: func(w http.ResponseWriter, r *http.Request, _ error, next step) {
		var continued atomic.Bool
		m(http.HandlerFunc(func(w2 http.ResponseWriter, r2 *http.Request) {
			continued.Store(true)
			next(w2, r2, nil)
		})).ServeHTTP(w, r)
		if !continued.Load() && !Written(w) {
			w.WriteHeader(http.StatusOK)
		}
	}}
}

type fallthroughKey struct{}

type fallthroughFunc struct {
	fired atomic.Bool
	next  func(w http.ResponseWriter)
}

func terminalLayer(h http.Handler) *layer {
	return &layer{serve: func(w http.ResponseWriter, r *http.Request, _ error, next step) {
		ft := &fallthroughFunc{next: func(w2 http.ResponseWriter) { next(w2, r, nil) }}

		// A chi router reuses a routing context found in the request, so the
		// host's one is hidden from the mounted handler.
		ctx := context.WithValue(r.Context(), fallthroughKey{}, ft)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, nil)

		h.ServeHTTP(w, r.WithContext(ctx))
		if !ft.fired.Load() && !Written(w) {
			w.WriteHeader(http.StatusOK)
		}
	}}
}

// Fallthrough continues the chain of the engine that mounted the current
// http.Handler. Outside an engine it replies 404.
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", connect.Fallthrough)
//	mux.HandleFunc("/ping", ping)
//	app.Use(mux)
func Fallthrough(w http.ResponseWriter, r *http.Request) {
	ft, ok := r.Context().Value(fallthroughKey{}).(*fallthroughFunc)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if ft.fired.CompareAndSwap(false, true) {
		ft.next(w)
	}
}

// NewRouter returns a chi router whose unmatched requests fall through to
// the rest of the chain instead of replying 404 or 405.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.NotFound(Fallthrough)
	r.MethodNotAllowed(Fallthrough)
	return r
}
