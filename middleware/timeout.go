package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kroma-labs/sentinel-connect/connect"
)

// ErrTimeout is passed to next when a handler wrapped by Timeout neither
// continued nor wrote in time.
var ErrTimeout = connect.NewHTTPError(http.StatusServiceUnavailable, "request timeout")

const (
	timeoutPending int32 = iota
	timeoutSettled
	timeoutExpired
)

// Timeout bounds the time h has to either call next or start the response.
// When it runs out, h's context is cancelled, the chain continues with
// ErrTimeout, and later writes or next calls from h are dropped.
//
// It matters for asynchronous handlers, which otherwise hold the exchange
// until the request context ends.
//
//	c.Use(middleware.Timeout(2*time.Second, lookupTenant))
func Timeout(d time.Duration, h connect.HandlerFunc) connect.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next connect.Next) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		connect.AfterResponse(r, cancel)

		tw := &timeoutWriter{ResponseWriter: w}
		tw.timer = time.AfterFunc(d, func() {
			if tw.state.CompareAndSwap(timeoutPending, timeoutExpired) {
				cancel()
				next(ErrTimeout)
			}
		})
		tw.settle = func() bool {
			if !tw.state.CompareAndSwap(timeoutPending, timeoutSettled) {
				return tw.state.Load() == timeoutSettled
			}
			tw.timer.Stop()
			return true
		}

		h(tw, r.WithContext(ctx), func(err error) {
			if tw.settle() {
				cancel()
				next(err)
			}
		})
	}
}

type timeoutWriter struct {
	http.ResponseWriter
	state  atomic.Int32
	timer  *time.Timer
	settle func() bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	if tw.settle() {
		tw.ResponseWriter.WriteHeader(code)
	}
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	if !tw.settle() {
		return 0, context.DeadlineExceeded
	}
	return tw.ResponseWriter.Write(b)
}

func (tw *timeoutWriter) Unwrap() http.ResponseWriter { return tw.ResponseWriter }
