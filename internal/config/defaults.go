package config

// DefaultPricingURL is the default pricing/indexing service endpoint.
const DefaultPricingURL = "https://pioneers.dev/api/v1"

// Hard limits of the fee safety gate. Configuration may lower them, never raise them.
const (
	HardMaxFee        uint64 = 10_000_000 // 0.1 base unit in satoshis
	HardMaxFeePercent uint64 = 50
	HardMaxFeeRate    uint64 = 1000
	DustLimit         uint64 = 546
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.keeper",
		Database: DatabaseConfig{
			Path: "~/.keeper/cache.db",
		},
		Pricing: PricingConfig{
			URL:            DefaultPricingURL,
			TimeoutSeconds: 30,
			RatePerSecond:  5,
			Burst:          10,
		},
		Device: DeviceConfig{
			TimeoutSeconds:      30,
			DetectAttempts:      3,
			DetectBaseDelayMSec: 500,
		},
		Frontload: FrontloadConfig{
			BalanceRefreshFatal: false,
			ReceiveAddresses:    5,
		},
		Balances: BalancesConfig{
			FreshnessMinutes: 60,
		},
		Fees: FeesConfig{
			MaxFee:        HardMaxFee,
			MaxFeePercent: HardMaxFeePercent,
			MinFeeRate:    1,
			MaxFeeRate:    HardMaxFeeRate,
			DustLimit:     DustLimit,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.keeper/keeper.log",
		},
	}
}
