package bridge

import (
	"errors"
	"fmt"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/samber/lo"
)

var (
	// ErrInvalidHook is returned by Register for a phase that does not run
	// before the route handler.
	ErrInvalidHook = errors.New("bridge: hook must be a request phase")

	// ErrAlreadyRegistered is returned by Register when the scope already
	// carries the bridge, directly or through a parent.
	ErrAlreadyRegistered = errors.New("bridge: already registered on this scope")
)

// InterceptorFactory returns the interceptor of one exchange.
type InterceptorFactory func(req *lifecycle.Request) connect.Interceptor

// Config holds the bridge configuration.
type Config struct {
	// Hook is the phase the engine runs in. Running after PreParsing lets
	// the host body parsers see the body first.
	Hook lifecycle.Phase

	// Interceptor, when set, is consulted on every exchange local read and
	// write.
	Interceptor InterceptorFactory
}

// DefaultConfig returns a Config running the engine at OnRequest.
func DefaultConfig() Config {
	return Config{
		Hook: lifecycle.OnRequest,
	}
}

// Option is a functional option for configuring the bridge.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithHook sets the phase the engine runs in.
func WithHook(phase lifecycle.Phase) Option {
	return func(c *Config) {
		c.Hook = phase
	}
}

// WithInterceptor sets the interceptor factory.
func WithInterceptor(f InterceptorFactory) Option {
	return func(c *Config) {
		c.Interceptor = f
	}
}

func (c Config) validate() error {
	if !lo.Contains(lifecycle.RequestPhases, c.Hook) {
		return fmt.Errorf("%w: %q", ErrInvalidHook, c.Hook)
	}
	return nil
}
