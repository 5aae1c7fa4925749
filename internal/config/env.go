package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Environment variable names.
const (
	EnvHome          = "KEEPER_HOME"
	EnvPricingURL    = "KEEPER_PRICING_URL"
	EnvPricingAPIKey = "KEEPER_PRICING_API_KEY" // #nosec G101 -- false positive, this is a const name not a credential
	EnvOutputFormat  = "KEEPER_OUTPUT_FORMAT"
	EnvLogLevel      = "KEEPER_LOG_LEVEL"
	EnvBalanceFatal  = "KEEPER_BALANCE_FATAL"
	EnvNoColor       = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
		cfg.Database.Path = ""
	}

	if v := os.Getenv(EnvPricingURL); v != "" {
		cfg.Pricing.URL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvPricingAPIKey); v != "" {
		cfg.Pricing.APIKey = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v, ok := os.LookupEnv(EnvBalanceFatal); ok {
		cfg.Frontload.BalanceRefreshFatal = parseBool(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL removes copy-paste artifacts from a user-provided service URL.
func SanitizeURL(raw string) string {
	return sanitize.URL(strings.TrimSpace(raw))
}

// ValidateServiceURL rejects URLs that are not plain http(s) endpoints.
// Plain http is only accepted for loopback hosts.
func ValidateServiceURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return kkerr.WithDetails(kkerr.WithCause(kkerr.ErrConfigInvalid, err), map[string]string{"url": raw})
	}
	switch u.Scheme {
	case "https":
		if u.Host == "" {
			return kkerr.WithDetails(kkerr.ErrConfigInvalid, map[string]string{"url": raw})
		}
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return kkerr.WithSuggestion(
			kkerr.WithDetails(kkerr.ErrConfigInvalid, map[string]string{"url": raw}),
			"use https for remote pricing services")
	default:
		return kkerr.WithDetails(kkerr.ErrConfigInvalid, map[string]string{"url": raw, "scheme": u.Scheme})
	}
}
