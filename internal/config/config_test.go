package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := config.Defaults()
	cfg.Pricing.URL = "https://pricing.example.com/api"
	cfg.Pricing.APIKey = "test-api-key"
	cfg.Frontload.BalanceRefreshFatal = true
	cfg.Fees.MaxFee = 5_000_000

	require.NoError(t, config.Save(cfg, path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fees:\n  max_fee: 1000\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), cfg.Fees.MaxFee)
	assert.Equal(t, config.HardMaxFeePercent, cfg.Fees.MaxFeePercent)
	assert.Equal(t, 30, cfg.Device.TimeoutSeconds)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fees: [unclosed"), 0o600))
	_, err = config.Load(path)
	require.ErrorIs(t, err, kkerr.ErrConfigInvalid)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "~/.keeper", cfg.Home)
	assert.Equal(t, config.DefaultPricingURL, cfg.Pricing.URL)
	assert.Equal(t, 30*time.Second, cfg.DeviceTimeout())
	assert.Equal(t, 3, cfg.Device.DetectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.DetectBaseDelay())
	assert.Equal(t, time.Hour, cfg.BalanceFreshness())
	assert.Equal(t, 30*time.Second, cfg.PricingTimeout())
	assert.False(t, cfg.Frontload.BalanceRefreshFatal)
	assert.Equal(t, 5, cfg.Frontload.ReceiveAddresses)
	assert.Equal(t, uint64(10_000_000), cfg.Fees.MaxFee)
	assert.Equal(t, uint64(50), cfg.Fees.MaxFeePercent)
	assert.Equal(t, uint64(1), cfg.Fees.MinFeeRate)
	assert.Equal(t, uint64(1000), cfg.Fees.MaxFeeRate)
	assert.Equal(t, uint64(546), cfg.Fees.DustLimit)
	assert.Equal(t, "error", cfg.GetLoggingLevel())
	assert.Equal(t, "auto", cfg.GetOutputFormat())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		detail string
	}{
		{"max fee above hard limit", func(c *config.Config) { c.Fees.MaxFee = config.HardMaxFee + 1 }, "max_fee"},
		{"max fee zero", func(c *config.Config) { c.Fees.MaxFee = 0 }, "max_fee"},
		{"percent above hard limit", func(c *config.Config) { c.Fees.MaxFeePercent = 51 }, "max_fee_percent"},
		{"min rate above max", func(c *config.Config) { c.Fees.MinFeeRate = 10; c.Fees.MaxFeeRate = 5 }, "min_fee_rate"},
		{"max rate above hard limit", func(c *config.Config) { c.Fees.MaxFeeRate = 5000 }, "max_fee_rate"},
		{"device timeout", func(c *config.Config) { c.Device.TimeoutSeconds = 0 }, "device_timeout_seconds"},
		{"freshness", func(c *config.Config) { c.Balances.FreshnessMinutes = -1 }, "freshness_minutes"},
		{"insecure pricing url", func(c *config.Config) { c.Pricing.URL = "http://pricing.example.com" }, "url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, kkerr.ErrConfigInvalid)
			assert.NotEmpty(t, kkerr.Detail(err, tt.detail))
		})
	}

	t.Run("lowered limits are accepted", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		cfg.Fees.MaxFee = 1_000
		cfg.Fees.MaxFeePercent = 10
		require.NoError(t, cfg.Validate())
	})
}

func TestDatabasePath(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Database.Path = "/var/lib/keeper/cache.db"
	assert.Equal(t, "/var/lib/keeper/cache.db", cfg.DatabasePath())

	cfg.Database.Path = ""
	cfg.Home = "/srv/keeper"
	assert.Equal(t, "/srv/keeper/cache.db", cfg.DatabasePath())
}

func TestPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("/home/u/.keeper", "config.yaml"), config.Path("/home/u/.keeper"))
	assert.Equal(t, "relative/path", config.ExpandHome("relative/path"))
}
