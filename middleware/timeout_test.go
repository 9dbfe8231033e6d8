package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kroma-labs/sentinel-connect/bridge"
	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeout(t *testing.T) {
	t.Parallel()

	t.Run("given handler that never continues, when time runs out, then 503 and its context is cancelled", func(t *testing.T) {
		t.Parallel()

		cancelled := make(chan error, 1)
		e := connect.New().Use(middleware.Timeout(20*time.Millisecond, func(_ http.ResponseWriter, r *http.Request, _ connect.Next) {
			go func() {
				<-r.Context().Done()
				cancelled <- r.Context().Err()
			}()
		}))

		rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		select {
		case err := <-cancelled:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(time.Second):
			t.Fatal("handler context was not cancelled")
		}
	})

	t.Run("given handler that continues in time, when served, then the chain proceeds", func(t *testing.T) {
		t.Parallel()

		e := connect.New().
			Use(middleware.Timeout(time.Second, func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
				go next(nil)
			})).
			Use(okHandler)

		rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("given handler that writes in time, when the deadline passes, then nothing else is written", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Use(middleware.Timeout(10*time.Millisecond, func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
			w.WriteHeader(http.StatusAccepted)
		}))

		rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
		time.Sleep(30 * time.Millisecond)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("given handler that continues late, when time ran out, then its next is dropped", func(t *testing.T) {
		t.Parallel()

		late := make(chan struct{})
		calls := 0
		e := connect.New().
			Use(middleware.Timeout(10*time.Millisecond, func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
				go func() {
					<-late
					next(nil)
				}()
			})).
			Use(func(w http.ResponseWriter, r *http.Request) {
				calls++
				okHandler(w, r)
			})

		rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
		close(late)
		time.Sleep(20 * time.Millisecond)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Zero(t, calls)
	})

	t.Run("given bridged app, when timed out, then host error handler answers", func(t *testing.T) {
		t.Parallel()

		app := lifecycle.New()
		c, err := bridge.Register(app.Scope)
		require.NoError(t, err)
		c.Use(middleware.Timeout(10*time.Millisecond, func(http.ResponseWriter, *http.Request, connect.Next) {}))
		app.Get("/", func(_ *lifecycle.Request, rep *lifecycle.Reply) error { return rep.Send("unreachable") })

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "request timeout")
	})
}
