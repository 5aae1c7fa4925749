// Package config provides configuration management for keeper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Database  DatabaseConfig  `yaml:"database"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Device    DeviceConfig    `yaml:"device"`
	Frontload FrontloadConfig `yaml:"frontload"`
	Balances  BalancesConfig  `yaml:"balances"`
	Fees      FeesConfig      `yaml:"fees"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig defines where the device cache is persisted.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PricingConfig defines the external pricing/indexing service.
type PricingConfig struct {
	URL            string  `yaml:"url"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
}

// DeviceConfig defines device access settings.
type DeviceConfig struct {
	TimeoutSeconds      int `yaml:"timeout_seconds"`
	DetectAttempts      int `yaml:"detect_attempts"`
	DetectBaseDelayMSec int `yaml:"detect_base_delay_ms"`
}

// FrontloadConfig defines cache population behavior.
type FrontloadConfig struct {
	BalanceRefreshFatal bool `yaml:"balance_refresh_fatal"`
	ReceiveAddresses    int  `yaml:"receive_addresses"`
}

// BalancesConfig defines balance cache behavior.
type BalancesConfig struct {
	FreshnessMinutes int `yaml:"freshness_minutes"`
}

// FeesConfig defines the transaction fee safety gate. Amounts are in
// minor units (satoshis).
type FeesConfig struct {
	MaxFee        uint64 `yaml:"max_fee"`
	MaxFeePercent uint64 `yaml:"max_fee_percent"`
	MinFeeRate    uint64 `yaml:"min_fee_rate"`
	MaxFeeRate    uint64 `yaml:"max_fee_rate"`
	DustLimit     uint64 `yaml:"dust_limit"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, kkerr.WithCause(kkerr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default keeper home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keeper"
	}
	return filepath.Join(home, ".keeper")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate rejects settings that would weaken the fee safety gate or leave
// the engine without usable limits.
func (c *Config) Validate() error {
	details := map[string]string{}
	switch {
	case c.Fees.MaxFee == 0 || c.Fees.MaxFee > HardMaxFee:
		details["max_fee"] = fmt.Sprintf("%d", c.Fees.MaxFee)
		details["limit"] = fmt.Sprintf("%d", HardMaxFee)
	case c.Fees.MaxFeePercent == 0 || c.Fees.MaxFeePercent > HardMaxFeePercent:
		details["max_fee_percent"] = fmt.Sprintf("%d", c.Fees.MaxFeePercent)
		details["limit"] = fmt.Sprintf("%d", HardMaxFeePercent)
	case c.Fees.MinFeeRate == 0 || c.Fees.MinFeeRate > c.Fees.MaxFeeRate:
		details["min_fee_rate"] = fmt.Sprintf("%d", c.Fees.MinFeeRate)
		details["max_fee_rate"] = fmt.Sprintf("%d", c.Fees.MaxFeeRate)
	case c.Fees.MaxFeeRate > HardMaxFeeRate:
		details["max_fee_rate"] = fmt.Sprintf("%d", c.Fees.MaxFeeRate)
		details["limit"] = fmt.Sprintf("%d", HardMaxFeeRate)
	case c.Device.TimeoutSeconds <= 0:
		details["device_timeout_seconds"] = fmt.Sprintf("%d", c.Device.TimeoutSeconds)
	case c.Balances.FreshnessMinutes <= 0:
		details["freshness_minutes"] = fmt.Sprintf("%d", c.Balances.FreshnessMinutes)
	default:
		return ValidateServiceURL(c.Pricing.URL)
	}
	return kkerr.WithDetails(kkerr.ErrConfigInvalid, details)
}

// DeviceTimeout returns the overall timeout for one logical device operation.
func (c *Config) DeviceTimeout() time.Duration {
	return time.Duration(c.Device.TimeoutSeconds) * time.Second
}

// DetectBaseDelay returns the first backoff delay of device detection.
func (c *Config) DetectBaseDelay() time.Duration {
	return time.Duration(c.Device.DetectBaseDelayMSec) * time.Millisecond
}

// PricingTimeout returns the HTTP timeout for the pricing service.
func (c *Config) PricingTimeout() time.Duration {
	return time.Duration(c.Pricing.TimeoutSeconds) * time.Second
}

// BalanceFreshness returns how long cached balances stay fresh.
func (c *Config) BalanceFreshness() time.Duration {
	return time.Duration(c.Balances.FreshnessMinutes) * time.Minute
}

// DatabasePath returns the expanded cache database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return ExpandHome(c.Database.Path)
	}
	return filepath.Join(ExpandHome(c.Home), "cache.db")
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}
