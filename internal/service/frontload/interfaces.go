package frontload

import (
	"context"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/balance"
)

// Store provides the cache operations frontload needs.
// Satisfied by *cache.Store.
type Store interface {
	SaveFeatures(ctx context.Context, deviceID string, f *device.Features) error
	LoadDevice(ctx context.Context, deviceID string) (int, error)
	Paths(ctx context.Context) ([]catalog.Path, error)
	AddPath(ctx context.Context, p catalog.Path) (bool, error)
	CachedAddress(coinName, scriptType string, path []uint32) (cache.Address, bool)
	SaveAddress(ctx context.Context, a cache.Address) error
}

// BalanceRefresher refreshes balances when they are stale.
// Satisfied by *balance.Service.
type BalanceRefresher interface {
	RefreshIfStale(ctx context.Context, deviceID string) (*balance.RefreshResult, bool, error)
}

// LogWriter provides logging operations.
type LogWriter interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
