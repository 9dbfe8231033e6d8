package bridge

import (
	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
)

// handle is the hook installed by Register. It runs the engine of the
// route's scope, which is the scope's own copy of the middleware visible
// when it was created.
func handle(req *lifecycle.Request, rep *lifecycle.Reply) error {
	c := From(req.Scope())
	if c == nil {
		return nil
	}
	return c.serve(req, rep)
}

func (c *Connect) serve(req *lifecycle.Request, rep *lifecycle.Reply) error {
	x := connect.NewExchange(fieldsFor(req))
	if c.config.Interceptor != nil {
		x.SetInterceptor(c.config.Interceptor(req))
	}

	w, r := connect.Attach(rep.Raw(), req.Raw(), x)
	req.SetContext(r.Context())

	h := w.Header()
	for k, v := range rep.Headers() {
		h[k] = v
	}

	if len(c.registrations) == 0 {
		return nil
	}

	res := c.engine.Run(w, r)
	switch {
	case res.Err != nil:
		return res.Err
	case res.Ended:
		return nil
	}
	req.SetContext(res.Request.Context())
	return nil
}

// fieldsFor is the exchange patch of one request.
func fieldsFor(req *lifecycle.Request) connect.Fields {
	return connect.Fields{
		ID:          req.ID(),
		Hostname:    req.Hostname(),
		IP:          req.IP(),
		IPs:         req.IPs(),
		OriginalURL: req.OriginalURL(),
		Log:         *req.Log(),
		Protocol:    req.Protocol,
	}
}

func restorePath(req *lifecycle.Request, _ *lifecycle.Reply, payload []byte) ([]byte, error) {
	if x := connect.ExchangeFrom(req.Raw()); x != nil {
		x.RestorePath()
	}
	return payload, nil
}

func finish(req *lifecycle.Request, _ *lifecycle.Reply) error {
	if x := connect.ExchangeFrom(req.Raw()); x != nil {
		x.Finish()
	}
	return nil
}
