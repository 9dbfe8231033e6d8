package config_test

import (
	"testing"
	"time"

	"github.com/kroma-labs/sentinel-connect/example/server/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		environ map[string]string
		check   func(t *testing.T, cfg config.Config)
		wantErr bool
	}{
		{
			name:    "given empty environment, when parsed, then defaults apply",
			environ: map[string]string{},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, ":8080", cfg.Addr)
				assert.Equal(t, ":2112", cfg.MetricsAddr)
				assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
				assert.Equal(t, rate.Limit(100), cfg.RateLimit)
				assert.Equal(t, 200, cfg.RateBurst)
				assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
				assert.False(t, cfg.IsProduction())
				assert.Empty(t, cfg.ServiceClients)
			},
		},
		{
			name: "given overrides, when parsed, then values are read",
			environ: map[string]string{
				"ADDR":            ":9000",
				"ENVIRONMENT":     "production",
				"LOG_LEVEL":       "warn",
				"RATE_LIMIT":      "2.5",
				"REDIS_ADDR":      "localhost:6379",
				"SERVICE_CLIENTS": "svc-a:key-a,svc-b:key-b",
				"REQUEST_TIMEOUT": "250ms",
			},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, ":9000", cfg.Addr)
				assert.True(t, cfg.IsProduction())
				assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
				assert.Equal(t, rate.Limit(2.5), cfg.RateLimit)
				assert.Equal(t, "localhost:6379", cfg.RedisAddr)
				assert.Equal(t, map[string]string{"svc-a": "key-a", "svc-b": "key-b"}, cfg.ServiceClients)
				assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
			},
		},
		{
			name:    "given a malformed duration, when parsed, then returns error",
			environ: map[string]string{"REQUEST_TIMEOUT": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.Parse(tt.environ)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
