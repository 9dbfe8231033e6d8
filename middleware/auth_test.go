package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCredentialValidator(t *testing.T) {
	t.Parallel()

	validator := middleware.NewMemoryCredentialValidator(map[string]string{
		"billing": "s3cret",
	})

	tests := []struct {
		name     string
		clientID string
		passkey  string
		wantErr  error
	}{
		{name: "given valid credentials, then nil", clientID: "billing", passkey: "s3cret"},
		{name: "given wrong passkey, then invalid", clientID: "billing", passkey: "nope", wantErr: middleware.ErrInvalidCredentials},
		{name: "given unknown client, then invalid", clientID: "ledger", passkey: "s3cret", wantErr: middleware.ErrInvalidCredentials},
		{name: "given empty client, then invalid", passkey: "s3cret", wantErr: middleware.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validator.Validate(context.Background(), tt.clientID, tt.passkey)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestServiceAuth(t *testing.T) {
	t.Parallel()

	validator := middleware.NewMemoryCredentialValidator(map[string]string{"billing": "s3cret"})

	tests := []struct {
		name         string
		clientID     string
		passkey      string
		wantStatus   int
		wantClientID string
		wantKey      string
	}{
		{
			name:         "given valid headers, when served, then client ID is available",
			clientID:     "billing",
			passkey:      "s3cret",
			wantStatus:   http.StatusOK,
			wantClientID: "billing",
			wantKey:      "billing:/internal/jobs",
		},
		{
			name:       "given missing headers, when served, then 401",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "given wrong passkey, when served, then 401",
			clientID:   "billing",
			passkey:    "guess",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotClientID, gotKey string
			var gotErr error
			e := connect.New().
				Use(middleware.ServiceAuth(middleware.ServiceAuthConfig{Validator: validator})).
				Use(func(w http.ResponseWriter, r *http.Request) {
					gotClientID = middleware.ClientIDFrom(r)
					gotKey = middleware.KeyFuncByClientIDAndPath()(r)
					okHandler(w, r)
				}).
				Use(func(err error, w http.ResponseWriter, r *http.Request, next connect.Next) {
					gotErr = err
					next(err)
				})

			req := httptest.NewRequest(http.MethodGet, "/internal/jobs", nil)
			if tt.clientID != "" {
				req.Header.Set("Client-ID", tt.clientID)
				req.Header.Set("Pass-Key", tt.passkey)
			}
			rec := serve(e, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantClientID, gotClientID)
			assert.Equal(t, tt.wantKey, gotKey)
			if tt.wantStatus == http.StatusUnauthorized {
				require.Error(t, gotErr)
				assert.ErrorIs(t, gotErr, middleware.ErrUnauthorized)
				assert.ErrorIs(t, gotErr, middleware.ErrInvalidCredentials)
				assert.Nil(t, middleware.ErrUnauthorized.Err)
			}
		})
	}

	t.Run("given validator func, when it fails, then its error is the cause", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("store unavailable")
		var gotErr error
		e := connect.New().
			Use(middleware.ServiceAuth(middleware.ServiceAuthConfig{
				Validator: middleware.CredentialValidatorFunc(func(context.Context, string, string) error {
					return boom
				}),
				ClientIDHeader: "X-Client",
				PassKeyHeader:  "X-Key",
			})).
			Use(func(err error, w http.ResponseWriter, r *http.Request, next connect.Next) {
				gotErr = err
				next(err)
			})

		serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, gotErr, boom)
	})
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		wantStatus int
	}{
		{name: "given valid credentials, then passes", user: "admin", pass: "pw", setAuth: true, wantStatus: http.StatusOK},
		{name: "given wrong password, then 401", user: "admin", pass: "bad", setAuth: true, wantStatus: http.StatusUnauthorized},
		{name: "given no credentials, then 401", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := connect.New().Use(middleware.BasicAuth("pprof", "admin", "pw")).Use(okHandler)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := serve(e, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="pprof"`, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
