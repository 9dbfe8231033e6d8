// Package connect is a middleware engine for the connect-style handler
// shape: a handler receives the response writer, the request and a
// continuation, and either calls the continuation (optionally with an
// error) or ends the exchange by writing the response itself.
//
// # Quick Start
//
//	app := connect.New()
//
//	app.Use(func(w http.ResponseWriter, r *http.Request, next connect.Next) {
//	    w.Header().Set("X-Served-By", "connect")
//	    next(nil)
//	})
//
//	api := connect.NewRouter()
//	api.Get("/users", listUsers)
//	app.UseAt("/api", api)
//
//	app.Use(func(err error, w http.ResponseWriter, r *http.Request, next connect.Next) {
//	    http.Error(w, err.Error(), connect.ErrorStatus(err))
//	})
//
//	http.ListenAndServe(":8080", app)
//
// # Handler Shapes
//
// Use and UseAt accept:
//   - HandlerFunc or func(http.ResponseWriter, *http.Request, Next)
//   - ErrorHandlerFunc or func(error, http.ResponseWriter, *http.Request, Next)
//   - *Engine, mounted as a sub-application
//   - Middleware or func(http.Handler) http.Handler
//   - http.Handler or func(http.ResponseWriter, *http.Request), terminal
//     unless it calls Fallthrough
//
// Anything else panics at registration.
//
// # Dispatch
//
// Layers run in registration order. While an error is pending only error
// handlers run; a normal handler is skipped. A layer registered with a
// path prefix only matches requests under that prefix (segment aware,
// case insensitive unless SettingCaseSensitive is enabled) and sees the
// request path with the prefix stripped. The path is put back when the
// layer continues.
//
// Panics inside a handler are recovered and continue the chain with a
// *PanicError.
//
// # Exchange
//
// An Exchange carries per-request values (id, client addresses, original
// URL, logger, locals) shared by every handler of one request. Hosts attach
// one with Attach; the engine creates one itself when served directly.
package connect
