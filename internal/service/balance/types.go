package balance

import (
	"github.com/shopspring/decimal"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
)

// RefreshResult describes one balance refresh.
type RefreshResult struct {
	Queried int   `json:"queried"`
	Saved   int   `json:"saved"`
	Skipped int   `json:"skipped"`
	Removed int64 `json:"removed"`
}

// Summary is the cached portfolio of a device.
type Summary struct {
	DeviceID string          `json:"device_id"`
	Balances []cache.Balance `json:"balances"`
	TotalUSD decimal.Decimal `json:"total_usd"`
	Stale    bool            `json:"stale"`
}
