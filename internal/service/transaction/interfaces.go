package transaction

import (
	"context"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
)

// XpubStore provides the device's cached account keys.
type XpubStore interface {
	Xpubs(ctx context.Context, deviceID, scriptType string) ([]cache.Address, error)
}

// UTXOSource lists unspent outputs of an account key.
type UTXOSource interface {
	ListUnspent(ctx context.Context, asset, xpub string) ([]pricing.UTXO, error)
}

// LogWriter provides logging operations.
type LogWriter interface {
	Debug(format string, args ...any)
	Warn(format string, args ...any)
}
