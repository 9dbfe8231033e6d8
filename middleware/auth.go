package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/kroma-labs/sentinel-connect/connect"
)

// ClientIDLocal is the exchange local holding the authenticated client ID.
const ClientIDLocal = "clientId"

var (
	// ErrInvalidCredentials is returned by validators when authentication
	// fails. It does not say which part of the credentials is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is passed to next when a request fails authentication.
	ErrUnauthorized = connect.NewHTTPError(http.StatusUnauthorized, "unauthorized")
)

// CredentialValidator validates service credentials.
type CredentialValidator interface {
	// Validate returns nil if the client ID and passkey are valid.
	Validate(ctx context.Context, clientID, passkey string) error
}

// CredentialValidatorFunc is an adapter to allow ordinary functions as validators.
type CredentialValidatorFunc func(ctx context.Context, clientID, passkey string) error

func (f CredentialValidatorFunc) Validate(ctx context.Context, clientID, passkey string) error {
	return f(ctx, clientID, passkey)
}

// MemoryCredentialValidator validates against an in-memory map of client ID
// to passkey, such as credentials loaded from the environment.
type MemoryCredentialValidator struct {
	clients map[string]string
}

// NewMemoryCredentialValidator creates a validator from a map of client ID
// to passkey.
//
//	validator := middleware.NewMemoryCredentialValidator(map[string]string{
//	    os.Getenv("SERVICE_CLIENT_ID"): os.Getenv("SERVICE_PASS_KEY"),
//	})
func NewMemoryCredentialValidator(clients map[string]string) *MemoryCredentialValidator {
	return &MemoryCredentialValidator{clients: clients}
}

func (v *MemoryCredentialValidator) Validate(_ context.Context, clientID, passkey string) error {
	if clientID == "" || passkey == "" {
		return ErrInvalidCredentials
	}

	expected, exists := v.clients[clientID]
	if !exists || subtle.ConstantTimeCompare([]byte(expected), []byte(passkey)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// ServiceAuthConfig configures the service-to-service authentication middleware.
type ServiceAuthConfig struct {
	// Validator checks the client ID and passkey.
	Validator CredentialValidator

	// ClientIDHeader is the header name for client ID.
	// Default: "Client-ID"
	ClientIDHeader string

	// PassKeyHeader is the header name for passkey.
	// Default: "Pass-Key"
	PassKeyHeader string
}

// ServiceAuth returns middleware that validates service-to-service
// credentials from the Client-ID and Pass-Key headers. A failed check
// continues with ErrUnauthorized; a passed one stores the client ID under
// ClientIDLocal.
//
//	c.UseAt("/internal", middleware.ServiceAuth(middleware.ServiceAuthConfig{
//	    Validator: validator,
//	}))
func ServiceAuth(cfg ServiceAuthConfig) connect.HandlerFunc {
	if cfg.ClientIDHeader == "" {
		cfg.ClientIDHeader = "Client-ID"
	}
	if cfg.PassKeyHeader == "" {
		cfg.PassKeyHeader = "Pass-Key"
	}

	return func(_ http.ResponseWriter, r *http.Request, next connect.Next) {
		clientID := r.Header.Get(cfg.ClientIDHeader)
		passkey := r.Header.Get(cfg.PassKeyHeader)

		if err := cfg.Validator.Validate(r.Context(), clientID, passkey); err != nil {
			next(ErrUnauthorized.WithCause(err))
			return
		}

		if x := connect.ExchangeFrom(r); x != nil {
			x.Set(ClientIDLocal, clientID)
		}
		next(nil)
	}
}

// ClientIDFrom returns the client ID authenticated by ServiceAuth, or "".
func ClientIDFrom(r *http.Request) string {
	x := connect.ExchangeFrom(r)
	if x == nil {
		return ""
	}
	id, _ := x.Get(ClientIDLocal)
	s, _ := id.(string)
	return s
}

// BasicAuth returns middleware requiring HTTP Basic credentials. A request
// without valid credentials gets a 401 with a WWW-Authenticate challenge
// and does not continue.
func BasicAuth(realm, username, password string) connect.HandlerFunc {
	challenge := `Basic realm="` + realm + `"`

	return func(w http.ResponseWriter, r *http.Request, next connect.Next) {
		user, pass, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

		if !ok || !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", challenge)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next(nil)
	}
}
