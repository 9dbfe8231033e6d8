// Package api is the example HTTP API: an in-memory order book served by a
// lifecycle.App, with connect middleware mounted through the bridge.
//
//	GET    /api/v1/orders
//	GET    /api/v1/orders/{id}
//	POST   /api/v1/orders           JSON {"item": "...", "quantity": 1}
//	DELETE /internal/orders/{id}    Client-ID and Pass-Key required
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kroma-labs/sentinel-connect/bridge"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
)

// ErrInvalidOrder is returned for an order without an item or quantity.
var ErrInvalidOrder = errors.New("order needs an item and a positive quantity")

// Deps are the collaborators of the API.
type Deps struct {
	Store *Store

	// Clients validates callers of the /internal routes. Nil disables
	// those routes.
	Clients middleware.CredentialValidator

	// RateLimit applies to every route of the API. A zero Limit disables
	// it.
	RateLimit middleware.RateLimitConfig

	// LimiterTimeout bounds the rate limit check, which may wait on Redis.
	LimiterTimeout time.Duration
}

// Register mounts the API on s. Middleware registered on s before Register
// also runs for the API routes.
func Register(s *lifecycle.Scope, deps Deps) error {
	if deps.Store == nil {
		deps.Store = NewStore()
	}

	c, err := connectOf(s)
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	c.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	c.Use(middleware.RequestID())
	if deps.RateLimit.Limit > 0 {
		limiter := middleware.RateLimit(deps.RateLimit)
		if deps.LimiterTimeout > 0 {
			limiter = middleware.Timeout(deps.LimiterTimeout, limiter)
		}
		c.UseAt("/api", limiter)
	}

	h := &handlers{store: deps.Store}
	if err := s.Register(func(p *lifecycle.Scope) error {
		p.Get("/orders", h.list)
		p.Get("/orders/{id}", h.get)
		p.Post("/orders", h.create)
		return nil
	}, lifecycle.WithPrefix("/api/v1")); err != nil {
		return err
	}

	if deps.Clients == nil {
		return nil
	}
	return s.Register(func(p *lifecycle.Scope) error {
		internal, err := connectOf(p)
		if err != nil {
			return err
		}
		internal.Use(middleware.ServiceAuth(middleware.ServiceAuthConfig{Validator: deps.Clients}))

		p.Delete("/orders/{id}", h.remove)
		return nil
	}, lifecycle.WithPrefix("/internal"))
}

// connectOf returns the bridge of s, installing it when s has none.
func connectOf(s *lifecycle.Scope) (*bridge.Connect, error) {
	if c := bridge.From(s); c != nil {
		return c, nil
	}
	return bridge.Register(s)
}

type handlers struct {
	store *Store
}

func (h *handlers) list(_ *lifecycle.Request, rep *lifecycle.Reply) error {
	return rep.Send(middleware.Response[[]Order]{Data: h.store.List()})
}

func (h *handlers) get(req *lifecycle.Request, rep *lifecycle.Reply) error {
	id := req.Param("id")
	o, ok := h.store.Get(id)
	if !ok {
		return lifecycle.NewError(http.StatusNotFound, fmt.Errorf("order %q not found", id))
	}
	return rep.Send(middleware.Response[Order]{Data: o})
}

func (h *handlers) create(req *lifecycle.Request, rep *lifecycle.Reply) error {
	body, _ := req.Body.(map[string]any)
	item, _ := body["item"].(string)
	quantity, _ := body["quantity"].(float64)
	if item == "" || quantity < 1 {
		return lifecycle.NewError(http.StatusBadRequest, ErrInvalidOrder)
	}

	o := h.store.Create(item, int(quantity))
	req.Log().Info().Str("order_id", o.ID).Msg("order created")
	return rep.Code(http.StatusCreated).Send(middleware.Response[Order]{Data: o})
}

func (h *handlers) remove(req *lifecycle.Request, rep *lifecycle.Reply) error {
	id := req.Param("id")
	if !h.store.Delete(id) {
		return lifecycle.NewError(http.StatusNotFound, fmt.Errorf("order %q not found", id))
	}
	req.Log().Info().
		Str("order_id", id).
		Str("client_id", middleware.ClientIDFrom(req.Raw())).
		Msg("order deleted")
	return rep.Code(http.StatusNoContent).Send(nil)
}
