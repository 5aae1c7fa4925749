package balance

import (
	"context"
	"time"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
)

// Store provides the cache operations a refresh needs.
// Satisfied by *cache.Store.
type Store interface {
	Addresses(ctx context.Context, deviceID string) ([]cache.Address, error)
	CachedBalances(ctx context.Context, deviceID string) ([]cache.Balance, error)
	SaveBalances(ctx context.Context, deviceID string, balances []cache.Balance) error
	ClearOldBalances(ctx context.Context, deviceID string, cutoff time.Time) (int64, error)
	BalancesNeedRefresh(ctx context.Context, deviceID string) (bool, error)
	Now() time.Time
}

// Pricer prices a batch of pubkeys.
// Satisfied by *pricing.Client.
type Pricer interface {
	Portfolio(ctx context.Context, queries []pricing.PortfolioQuery) ([]pricing.PortfolioEntry, error)
}

// LogWriter provides logging operations.
type LogWriter interface {
	Debug(format string, args ...any)
	Warn(format string, args ...any)
}
