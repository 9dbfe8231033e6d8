// Package bridge runs connect-style middleware inside a lifecycle.App.
//
// Register installs one hook on a scope. Every scope created below it
// afterwards gets its own copy of the registrations made so far, so
// middleware follows the same encapsulation rules as lifecycle hooks:
// visibility is decided when a child scope is created.
//
//	app := lifecycle.New()
//	c, err := bridge.Register(app.Scope)
//	if err != nil {
//	    return err
//	}
//	c.Use(middleware.RequestID()).
//	    UseAt("/api", apiRouter)
//
// At dispatch the hook builds a connect.Exchange from the lifecycle request
// (ID, hostname, client addresses, original URL, logger and protocol),
// copies headers already set on the reply, and runs the engine of the
// route's scope. An error passed to next is returned to the host as is, a
// response written by the chain ends the host pipeline, and a chain that
// runs to the end hands its request context back to the host.
//
// # Body parsing
//
// The host parses request bodies after PreParsing. A connect body parser
// running at the default OnRequest hook reads the raw body first and the
// host sees an empty body; with WithHook(lifecycle.PreHandler) the host
// parses first and leaves a re-readable copy for the chain. The order of
// hooks decides which parser owns the body; the bridge does not arbitrate.
package bridge
