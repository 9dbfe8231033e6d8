// Package lifecycle is a hook-pipeline HTTP framework: every request runs
// through named phases, and applications extend it with plugins that live
// in encapsulated scopes.
//
// # Quick Start
//
//	app := lifecycle.New(lifecycle.WithLogger(logger))
//
//	app.AddHook(lifecycle.OnRequest, func(req *lifecycle.Request, rep *lifecycle.Reply) error {
//	    rep.Header("X-Request-ID", req.ID())
//	    return nil
//	})
//
//	_ = app.Register(func(s *lifecycle.Scope) error {
//	    s.Get("/users/{id}", getUser)
//	    return nil
//	}, lifecycle.WithPrefix("/api"))
//
//	http.ListenAndServe(":8080", app)
//
// # Phases
//
// A request runs, in order: OnRequest, PreParsing, body parsing,
// PreValidation, PreHandler, the route handler, OnSend (on Reply.Send),
// OnResponse. A hook returning an error diverts the request to OnError
// hooks and the scope's error handler. A hook that sends the reply, or
// writes to Reply.Raw directly, stops the remaining phases. OnResponse
// always runs.
//
// # Scopes
//
// Register runs a plugin in a new child scope. The child starts with a copy
// of the parent's hooks, values, decorations, parsers and error handler;
// anything added to either side afterwards stays on that side. Scopes are
// frozen once the app is ready: Register, AddHook and routes panic after
// Ready.
package lifecycle
