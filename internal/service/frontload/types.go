package frontload

import (
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
)

// DefaultReceiveAddresses is how many receive addresses are cached per
// UTXO account.
const DefaultReceiveAddresses = 5

// Options selects frontload policy.
type Options struct {
	// BalanceRefreshFatal makes a failed balance refresh fail the whole run.
	// When false the failure is logged and reported, and the run succeeds
	// with addresses cached.
	BalanceRefreshFatal bool

	// ReceiveAddresses is the number of receive addresses derived per UTXO
	// account. Zero means DefaultReceiveAddresses.
	ReceiveAddresses int

	// Catalog is reconciled into the store before deriving. Nil means
	// catalog.Default().
	Catalog []catalog.Path

	// RefreshFeatures queries the device for features on every run instead
	// of reusing the identity learned on the first run.
	RefreshFeatures bool
}

// Report summarises one frontload run.
type Report struct {
	DeviceID         string   `json:"device_id"`
	PathsReconciled  int      `json:"paths_reconciled"`
	XpubsDerived     int      `json:"xpubs_derived"`
	AddressesDerived int      `json:"addresses_derived"`
	CachedHits       int      `json:"cached_hits"`
	NetworksSkipped  int      `json:"networks_skipped"`
	PathsSkipped     int      `json:"paths_skipped"`
	Failures         []string `json:"failures,omitempty"`
	BalanceRefreshed bool     `json:"balance_refreshed"`
	BalanceRows      int      `json:"balance_rows"`
	BalanceError     string   `json:"balance_error,omitempty"`
}

// DeviceRoundTrips is the number of derivations fetched from the device.
func (r *Report) DeviceRoundTrips() int {
	return r.XpubsDerived + r.AddressesDerived
}
