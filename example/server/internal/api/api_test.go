package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/kroma-labs/sentinel-connect/example/server/internal/api"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T, deps api.Deps) *lifecycle.App {
	t.Helper()

	app := lifecycle.New()
	require.NoError(t, api.Register(app.Scope, deps))
	require.NoError(t, app.Ready())
	return app
}

func do(app http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func TestOrders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "given a valid order, when created, then returns 201 with the order",
			method:     http.MethodPost,
			target:     "/api/v1/orders",
			body:       `{"item":"tea","quantity":2}`,
			wantStatus: http.StatusCreated,
			wantBody:   `"item":"tea"`,
		},
		{
			name:       "given an order without quantity, when created, then returns 400",
			method:     http.MethodPost,
			target:     "/api/v1/orders",
			body:       `{"item":"tea"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   api.ErrInvalidOrder.Error(),
		},
		{
			name:       "given malformed JSON, when created, then returns 400",
			method:     http.MethodPost,
			target:     "/api/v1/orders",
			body:       `{"item":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "given an existing order, when fetched, then returns it",
			method:     http.MethodGet,
			target:     "/api/v1/orders/1",
			wantStatus: http.StatusOK,
			wantBody:   `"id":"1"`,
		},
		{
			name:       "given an unknown order, when fetched, then returns 404",
			method:     http.MethodGet,
			target:     "/api/v1/orders/42",
			wantStatus: http.StatusNotFound,
			wantBody:   `order \"42\" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := api.NewStore()
			store.Create("coffee", 1)
			app := newApp(t, api.Deps{Store: store})

			rec := do(app, tt.method, tt.target, tt.body, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestOrders_List(t *testing.T) {
	t.Parallel()

	store := api.NewStore()
	for _, item := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"} {
		store.Create(item, 1)
	}
	app := newApp(t, api.Deps{Store: store})

	rec := do(app, http.MethodGet, "/api/v1/orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp middleware.Response[[]api.Order]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 11)
	assert.Equal(t, "1", resp.Data[0].ID)
	assert.Equal(t, "2", resp.Data[1].ID)
	assert.Equal(t, "11", resp.Data[10].ID)
}

func TestInternal(t *testing.T) {
	t.Parallel()

	clients := middleware.NewMemoryCredentialValidator(map[string]string{"svc-a": "secret"})

	tests := []struct {
		name       string
		deps       api.Deps
		header     map[string]string
		wantStatus int
		wantGone   bool
	}{
		{
			name:       "given valid credentials, when deleting, then returns 204",
			deps:       api.Deps{Clients: clients},
			header:     map[string]string{"Client-ID": "svc-a", "Pass-Key": "secret"},
			wantStatus: http.StatusNoContent,
			wantGone:   true,
		},
		{
			name:       "given no credentials, when deleting, then returns 401",
			deps:       api.Deps{Clients: clients},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "given no validator, when deleting, then route does not exist",
			header:     map[string]string{"Client-ID": "svc-a", "Pass-Key": "secret"},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := api.NewStore()
			o := store.Create("coffee", 1)
			tt.deps.Store = store
			app := newApp(t, tt.deps)

			rec := do(app, http.MethodDelete, "/internal/orders/"+o.ID, "", tt.header)

			assert.Equal(t, tt.wantStatus, rec.Code)
			_, ok := store.Get(o.ID)
			assert.Equal(t, tt.wantGone, !ok)
		})
	}

	t.Run("given public routes, when called without credentials, then they are unaffected", func(t *testing.T) {
		t.Parallel()

		app := newApp(t, api.Deps{Clients: clients})
		rec := do(app, http.MethodGet, "/api/v1/orders", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	app := newApp(t, api.Deps{
		RateLimit:      middleware.RateLimitConfig{Limit: 0.001, Burst: 1},
		LimiterTimeout: time.Second,
	})

	assert.Equal(t, http.StatusOK, do(app, http.MethodGet, "/api/v1/orders", "", nil).Code)

	rec := do(app, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
