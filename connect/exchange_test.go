package connect_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		requestID string
		wantID    string
	}{
		{
			name:      "given X-Request-ID, when derived, then uses it",
			requestID: "req-123",
			wantID:    "req-123",
		},
		{
			name: "given no X-Request-ID, when derived, then generates one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "http://example.com/a?b=c", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			if tt.requestID != "" {
				req.Header.Set(connect.RequestIDHeader, tt.requestID)
			}

			f := connect.FieldsFromRequest(req)
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, f.ID)
			} else {
				assert.NotEmpty(t, f.ID)
			}
			assert.Equal(t, "example.com", f.Hostname)
			assert.Equal(t, "10.0.0.1", f.IP)
			assert.Equal(t, []string{"10.0.0.1"}, f.IPs)
			assert.Equal(t, "/a?b=c", f.OriginalURL)
			assert.Equal(t, "http", f.Protocol())
		})
	}
}

func TestExchange_Protocol(t *testing.T) {
	t.Parallel()

	t.Run("given lazy protocol, when read twice, then computed once", func(t *testing.T) {
		t.Parallel()

		calls := 0
		x := connect.NewExchange(connect.Fields{Protocol: func() string {
			calls++
			return "https"
		}})

		assert.Equal(t, 0, calls)
		assert.Equal(t, "https", x.Protocol())
		assert.Equal(t, "https", x.Protocol())
		assert.Equal(t, 1, calls)
	})
}

func TestExchange_Interceptor(t *testing.T) {
	t.Parallel()

	host := map[string]any{"user": "alice"}
	interceptor := connect.InterceptorFuncs{
		GetFunc: func(target connect.Locals, name string) (any, bool) {
			if v, ok := host[name]; ok {
				return v, true
			}
			return target.Get(name)
		},
		SetFunc: func(target connect.Locals, name string, value any) {
			if name == "readonly" {
				return
			}
			if _, ok := host[name]; ok {
				host[name] = value
				return
			}
			target.Set(name, value)
		},
	}

	x := connect.NewExchange(connect.Fields{})
	x.SetInterceptor(interceptor)

	v, ok := x.Get("user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	x.Set("user", "bob")
	assert.Equal(t, "bob", host["user"])

	x.Set("readonly", 1)
	_, ok = x.Get("readonly")
	assert.False(t, ok)

	x.Set("plain", 2)
	v, ok = x.Get("plain")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, inHost := host["plain"]
	assert.False(t, inHost)
}

func TestAttach(t *testing.T) {
	t.Parallel()

	t.Run("given attached exchange, when read back, then found on request and writer", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		x := connect.NewExchange(connect.Fields{ID: "abc", Log: zerolog.New(&buf)})
		w, r := connect.Attach(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), x)

		assert.Same(t, x, connect.ExchangeFrom(r))
		assert.Same(t, x, connect.ExchangeOf(w))
		assert.Same(t, x, connect.ExchangeOf(connect.TrackWriter(w)))

		zerolog.Ctx(r.Context()).Info().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
	})

	t.Run("given stripped path, when response starts, then path is restored once", func(t *testing.T) {
		t.Parallel()

		x := connect.NewExchange(connect.Fields{})
		w, r := connect.Attach(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/hubba/bubba", nil), x)

		r.URL.Path = "/bubba"
		w.WriteHeader(http.StatusOK)
		assert.Equal(t, "/hubba/bubba", r.URL.Path)

		r.URL.Path = "/again"
		x.RestorePath()
		assert.Equal(t, "/again", r.URL.Path, "restore only runs once")
	})

	t.Run("given no exchange, when looked up, then nil", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, connect.ExchangeFrom(httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Nil(t, connect.ExchangeOf(httptest.NewRecorder()))
		assert.False(t, connect.AfterResponse(httptest.NewRequest(http.MethodGet, "/", nil), func() {}))
	})
}

func TestExchange_Finish(t *testing.T) {
	t.Parallel()

	x := connect.NewExchange(connect.Fields{})
	_, r := connect.Attach(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), x)

	var order []int
	require.True(t, connect.AfterResponse(r, func() { order = append(order, 1) }))
	require.True(t, connect.AfterResponse(r, func() { order = append(order, 2) }))

	x.Finish()
	x.Finish()
	assert.Equal(t, []int{2, 1}, order)

	x.OnFinish(func() { order = append(order, 3) })
	assert.Equal(t, []int{2, 1, 3}, order)
}

func TestEngine_ServeHTTP_Exchange(t *testing.T) {
	t.Parallel()

	t.Run("given standalone engine, when served, then handlers share one exchange", func(t *testing.T) {
		t.Parallel()

		var finished bool
		e := connect.New().
			Use(func(_ http.ResponseWriter, r *http.Request, next connect.Next) {
				x := connect.ExchangeFrom(r)
				x.Set("seen", true)
				x.OnFinish(func() { finished = true })
				next(nil)
			}).
			Use(func(w http.ResponseWriter, r *http.Request, _ connect.Next) {
				v, _ := connect.ExchangeFrom(r).Get("seen")
				assert.Equal(t, true, v)
				assert.Same(t, connect.ExchangeFrom(r), connect.ExchangeOf(w))
				w.WriteHeader(http.StatusOK)
			})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, finished)
	})
}
