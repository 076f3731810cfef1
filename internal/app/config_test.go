package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/pos-core/internal/pos"
)

func validConfig() Config {
	return Config{
		StoreDriver:        StoreDriverMemory,
		DiscountPolicy:     "pre_tax",
		LogLevel:           "info",
		TxMaxAttempts:      3,
		TxLockTimeout:      3 * time.Second,
		RateLimitPerMinute: 120,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DISCOUNT_POLICY", "post_tax")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, pos.PolicyPostTax, cfg.Policy())
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 3, cfg.TxMaxAttempts)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown driver":    func(c *Config) { c.StoreDriver = "sqlite" },
		"unknown policy":    func(c *Config) { c.DiscountPolicy = "sometimes" },
		"unknown log level": func(c *Config) { c.LogLevel = "loud" },
		"zero attempts":     func(c *Config) { c.TxMaxAttempts = 0 },
		"no lock timeout":   func(c *Config) { c.TxLockTimeout = 0 },
		"negative limit":    func(c *Config) { c.RateLimitPerMinute = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
	cfg := validConfig()
	assert.NoError(t, cfg.validate())
	assert.Equal(t, pos.PolicyPreTax, cfg.Policy())
	assert.False(t, cfg.IsProduction())
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
