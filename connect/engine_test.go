package connect_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/go-chi/chi/v5"
	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(calls *[]string, name string) connect.HandlerFunc {
	return func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
		*calls = append(*calls, name)
		next(nil)
	}
}

func serve(t *testing.T, e *connect.Engine, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestEngine_Order(t *testing.T) {
	t.Parallel()

	t.Run("given three handlers, when served, then runs in registration order", func(t *testing.T) {
		t.Parallel()

		var calls []string
		e := connect.New().
			Use(record(&calls, "a")).
			Use(record(&calls, "b")).
			Use(record(&calls, "c"))

		for i := 0; i < 3; i++ {
			calls = nil
			rec := serve(t, e, http.MethodGet, "/")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, []string{"a", "b", "c"}, calls)
		}
	})

	t.Run("given a handler that writes, when served, then later handlers do not run", func(t *testing.T) {
		t.Parallel()

		var calls []string
		e := connect.New().
			Use(record(&calls, "a")).
			Use(func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
				calls = append(calls, "writer")
				w.WriteHeader(http.StatusAccepted)
			}).
			Use(record(&calls, "c"))

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"a", "writer"}, calls)
	})
}

func TestEngine_UseAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prefix   string
		target   string
		wantHit  bool
		wantPath string
	}{
		{
			name:     "given exact prefix, when matched, then handler sees root path",
			prefix:   "/api",
			target:   "/api",
			wantHit:  true,
			wantPath: "/",
		},
		{
			name:     "given nested path, when matched, then prefix is stripped",
			prefix:   "/api",
			target:   "/api/users/1",
			wantHit:  true,
			wantPath: "/users/1",
		},
		{
			name:    "given partial segment, when served, then handler is skipped",
			prefix:  "/api",
			target:  "/apix",
			wantHit: false,
		},
		{
			name:     "given different case, when served, then matches case insensitively",
			prefix:   "/API",
			target:   "/api/x",
			wantHit:  true,
			wantPath: "/x",
		},
		{
			name:     "given trailing slash on prefix, when served, then it is normalized",
			prefix:   "/api/",
			target:   "/api/x",
			wantHit:  true,
			wantPath: "/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var hit bool
			var seen, after string
			e := connect.New().
				UseAt(tt.prefix, func(_ http.ResponseWriter, r *http.Request, next connect.Next) {
					hit = true
					seen = r.URL.Path
					next(nil)
				}).
				Use(func(w http.ResponseWriter, r *http.Request, _ connect.Next) {
					after = r.URL.Path
					w.WriteHeader(http.StatusOK)
				})

			rec := serve(t, e, http.MethodGet, tt.target)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantHit, hit)
			if tt.wantHit {
				assert.Equal(t, tt.wantPath, seen)
			}
			assert.Equal(t, tt.target, after, "path is restored when the layer continues")
		})
	}

	t.Run("given case sensitive routing, when case differs, then handler is skipped", func(t *testing.T) {
		t.Parallel()

		var hit bool
		e := connect.New().Enable(connect.SettingCaseSensitive)
		e.UseAt("/API", func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
			hit = true
			next(nil)
		})

		serve(t, e, http.MethodGet, "/api")
		assert.False(t, hit)
	})
}

func TestEngine_Errors(t *testing.T) {
	t.Parallel()

	t.Run("given a handler passes an error, when served, then only error handlers run", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		var calls []string
		var got error

		e := connect.New().
			Use(func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
				next(boom)
			}).
			Use(record(&calls, "skipped")).
			Use(func(err error, w http.ResponseWriter, _ *http.Request, _ connect.Next) {
				got = err
				w.WriteHeader(http.StatusTeapot)
			})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Empty(t, calls)
		assert.Same(t, boom, got)
	})

	t.Run("given no error pending, when served, then error handlers are skipped", func(t *testing.T) {
		t.Parallel()

		var called bool
		e := connect.New().
			Use(func(_ error, _ http.ResponseWriter, _ *http.Request, next connect.Next) {
				called = true
				next(nil)
			})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.False(t, called)
	})

	t.Run("given an error handler recovers, when it continues without error, then normal handlers resume", func(t *testing.T) {
		t.Parallel()

		e := connect.New().
			Use(func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
				next(assert.AnError)
			}).
			Use(func(_ error, _ http.ResponseWriter, _ *http.Request, next connect.Next) {
				next(nil)
			}).
			Use(func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
				w.WriteHeader(http.StatusNoContent)
			})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("given an unhandled http error, when served, then replies with its status", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Use(func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
			next(connect.NewHTTPError(http.StatusUnauthorized, "missing token"))
		})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "missing token", body["message"])
	})
}

func TestEngine_Panics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		panicValue any
		wantUnwrap error
	}{
		{
			name:       "given handler panics with string, when served, then chain gets PanicError",
			panicValue: "kaboom",
		},
		{
			name:       "given handler panics with error, when served, then PanicError unwraps it",
			panicValue: assert.AnError,
			wantUnwrap: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got error
			e := connect.New().
				Use(func(_ http.ResponseWriter, _ *http.Request, _ connect.Next) {
					panic(tt.panicValue)
				}).
				Use(func(err error, w http.ResponseWriter, _ *http.Request, _ connect.Next) {
					got = err
					w.WriteHeader(http.StatusInternalServerError)
				})

			assert.NotPanics(t, func() { serve(t, e, http.MethodGet, "/") })

			var perr *connect.PanicError
			require.ErrorAs(t, got, &perr)
			assert.Equal(t, tt.panicValue, perr.Value)
			assert.NotEmpty(t, perr.Stack)
			if tt.wantUnwrap != nil {
				assert.ErrorIs(t, got, tt.wantUnwrap)
			}
		})
	}

	t.Run("given invalid handler, when registered, then panics", func(t *testing.T) {
		t.Parallel()

		assert.PanicsWithValue(t, "connect: Use() requires a handler but got a int", func() {
			connect.New().Use(42)
		})
		assert.Panics(t, func() { connect.New().Use(nil) })
	})
}

func TestEngine_HandlerShapes(t *testing.T) {
	t.Parallel()

	t.Run("given std middleware, when it replaces the request, then later handlers see it", func(t *testing.T) {
		t.Parallel()

		type key struct{}
		var got any
		e := connect.New().
			Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("X-Std", "yes")
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key{}, "value")))
				})
			}).
			Use(func(w http.ResponseWriter, r *http.Request, _ connect.Next) {
				got = r.Context().Value(key{})
				w.WriteHeader(http.StatusOK)
			})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, "yes", rec.Header().Get("X-Std"))
		assert.Equal(t, "value", got)
	})

	t.Run("given std middleware that short-circuits, when served, then the chain ends", func(t *testing.T) {
		t.Parallel()

		var reached bool
		e := connect.New().
			Use(connect.Middleware(func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusForbidden)
				})
			})).
			Use(func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
				reached = true
				next(nil)
			})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, reached)
	})

	t.Run("given chi router, when route matches, then it sees the stripped path", func(t *testing.T) {
		t.Parallel()

		api := connect.NewRouter()
		api.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("user " + chi.URLParam(r, "id")))
		})

		e := connect.New().UseAt("/api", api)

		rec := serve(t, e, http.MethodGet, "/api/users/7")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user 7", rec.Body.String())
	})

	t.Run("given chi router, when nothing matches, then the chain falls through", func(t *testing.T) {
		t.Parallel()

		api := connect.NewRouter()
		api.Get("/users", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		var fell string
		e := connect.New().
			UseAt("/api", api).
			Use(func(w http.ResponseWriter, r *http.Request, _ connect.Next) {
				fell = r.URL.Path
				w.WriteHeader(http.StatusNoContent)
			})

		rec := serve(t, e, http.MethodPost, "/api/users")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "/api/users", fell)
	})

	t.Run("given plain handler that writes nothing, when served, then replies 200", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Use(func(_ http.ResponseWriter, _ *http.Request) {})

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("given sub-engine, when mounted, then runs under the prefix and continues", func(t *testing.T) {
		t.Parallel()

		var inner string
		sub := connect.New().Use(func(_ http.ResponseWriter, r *http.Request, next connect.Next) {
			inner = r.URL.Path
			next(nil)
		})

		e := connect.New().
			UseAt("/hubba", sub).
			Use(func(w http.ResponseWriter, r *http.Request, _ connect.Next) {
				_, _ = w.Write([]byte(r.URL.Path))
			})

		rec := serve(t, e, http.MethodGet, "/hubba/bubba")
		assert.Equal(t, "/bubba", inner)
		assert.Equal(t, "/hubba/bubba", rec.Body.String())
	})
}

func TestEngine_Routes(t *testing.T) {
	t.Parallel()

	e := connect.New().
		Get("/users", func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
			_, _ = w.Write([]byte("list"))
		}).
		Post("/users", func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
			w.WriteHeader(http.StatusCreated)
		})

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
	}{
		{"given GET route, when GET, then served", http.MethodGet, "/users", http.StatusOK},
		{"given GET route, when HEAD, then served", http.MethodHead, "/users", http.StatusOK},
		{"given GET route, when trailing slash, then served", http.MethodGet, "/users/", http.StatusOK},
		{"given POST route, when POST, then served", http.MethodPost, "/users", http.StatusCreated},
		{"given routes, when DELETE, then not found", http.MethodDelete, "/users", http.StatusNotFound},
		{"given routes, when sub path, then not found", http.MethodGet, "/users/1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, e, tt.method, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestEngine_Settings(t *testing.T) {
	t.Parallel()

	t.Run("given default engine, when served, then sends X-Powered-By", func(t *testing.T) {
		t.Parallel()

		e := connect.New()
		assert.True(t, e.Enabled(connect.SettingPoweredBy))

		rec := serve(t, e, http.MethodGet, "/")
		assert.Equal(t, connect.PoweredBy, rec.Header().Get("X-Powered-By"))
	})

	t.Run("given x-powered-by disabled, when served, then header is absent", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Disable(connect.SettingPoweredBy)
		assert.True(t, e.Disabled(connect.SettingPoweredBy))

		rec := serve(t, e, http.MethodGet, "/")
		assert.Empty(t, rec.Header().Get("X-Powered-By"))
	})
}

func TestEngine_Run(t *testing.T) {
	t.Parallel()

	t.Run("given async continuation, when run, then waits for it", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Use(func(_ http.ResponseWriter, _ *http.Request, next connect.Next) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				next(assert.AnError)
			}()
		})

		res := e.Run(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.False(t, res.Ended)
		assert.ErrorIs(t, res.Err, assert.AnError)
	})

	t.Run("given handler writes without continuing, when run, then ended", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Use(func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
			w.WriteHeader(http.StatusOK)
		})

		res := e.Run(connect.TrackWriter(httptest.NewRecorder()), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, res.Ended)
		assert.NoError(t, res.Err)
	})

	t.Run("given handler never continues, when context ends, then returns context error", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Use(func(_ http.ResponseWriter, _ *http.Request, _ connect.Next) {})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

		res := e.Run(connect.TrackWriter(httptest.NewRecorder()), req)
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	})

	t.Run("given handler writes from a goroutine without continuing, when run, then ended", func(t *testing.T) {
		t.Parallel()

		wrote := make(chan struct{})
		e := connect.New().Use(func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
			go func() {
				defer close(wrote)
				time.Sleep(10 * time.Millisecond)
				w.WriteHeader(http.StatusTeapot)
			}()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rec := httptest.NewRecorder()

		res := e.Run(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		<-wrote
		assert.True(t, res.Ended)
		assert.NoError(t, res.Err)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("given context ended first, when handler writes later, then write is dropped", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		wrote := make(chan error, 1)
		e := connect.New().Use(func(w http.ResponseWriter, _ *http.Request, _ connect.Next) {
			go func() {
				<-release
				_, err := w.Write([]byte("late"))
				wrote <- err
			}()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := httptest.NewRecorder()

		res := e.Run(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		close(release)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.ErrorIs(t, <-wrote, http.ErrHandlerTimeout)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("given chain completes, when run, then returns final request", func(t *testing.T) {
		t.Parallel()

		e := connect.New().Use(record(new([]string), "a"))
		req := httptest.NewRequest(http.MethodGet, "/x", nil)

		res := e.Run(httptest.NewRecorder(), req)
		require.NotNil(t, res.Request)
		assert.True(t, strings.HasSuffix(res.Request.URL.Path, "/x"))
		assert.NoError(t, res.Err)
	})
}
