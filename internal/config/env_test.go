package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

func TestParseBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"on", true},
		{"  true  ", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"off", false},
		{"", false},
		{"random", false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, parseBool(tc.input))
		})
	}
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://pioneers.dev/api/v1", SanitizeURL("  https://pioneers.dev/api/v1  "))
	assert.Equal(t, "http://localhost:9001", SanitizeURL("http://localhost:9001"))
}

func TestValidateServiceURL(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{
		"",
		"https://pioneers.dev/api/v1",
		"http://localhost:9001",
		"http://127.0.0.1:9001/api",
		"http://[::1]:9001",
	} {
		require.NoError(t, ValidateServiceURL(ok), ok)
	}

	for _, bad := range []string{
		"http://pricing.example.com",
		"javascript:alert(1)",
		"file:///etc/passwd",
		"ftp://example.com",
		"https://",
	} {
		require.ErrorIs(t, ValidateServiceURL(bad), kkerr.ErrConfigInvalid, bad)
	}
}

//nolint:paralleltest // t.Setenv cannot be used with t.Parallel
func TestApplyEnvironment(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		t.Setenv(EnvHome, "/tmp/keeper-home")
		t.Setenv(EnvPricingURL, "  https://pricing.example.com/api ")
		t.Setenv(EnvPricingAPIKey, " secret ")
		t.Setenv(EnvOutputFormat, "JSON")
		t.Setenv(EnvLogLevel, "DEBUG")
		t.Setenv(EnvBalanceFatal, "yes")
		t.Setenv(EnvNoColor, "")

		cfg := Defaults()
		ApplyEnvironment(cfg)

		assert.Equal(t, "/tmp/keeper-home", cfg.Home)
		assert.Equal(t, "/tmp/keeper-home/cache.db", cfg.DatabasePath())
		assert.Equal(t, "https://pricing.example.com/api", cfg.Pricing.URL)
		assert.Equal(t, "secret", cfg.Pricing.APIKey)
		assert.Equal(t, "json", cfg.Output.DefaultFormat)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Frontload.BalanceRefreshFatal)
		assert.Equal(t, "never", cfg.Output.Color)
	})

	t.Run("balance fatal can be switched off", func(t *testing.T) {
		t.Setenv(EnvBalanceFatal, "0")

		cfg := Defaults()
		cfg.Frontload.BalanceRefreshFatal = true
		ApplyEnvironment(cfg)
		assert.False(t, cfg.Frontload.BalanceRefreshFatal)
	})
}
