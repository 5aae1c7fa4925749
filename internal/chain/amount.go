package chain

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// SatoshiDecimals is the number of decimal places of a UTXO base unit.
const SatoshiDecimals = 8

// ParseAmount converts a positive decimal string in base units (e.g. "0.015")
// to integer minor units. Fractions finer than decimals are rejected rather
// than silently rounded.
func ParseAmount(amount string, decimals int32) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"amount": amount})
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, kkerr.WithDetails(kkerr.WithCause(kkerr.ErrValidation, err), map[string]string{"amount": amount})
	}
	if !d.IsPositive() {
		return 0, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"amount": amount})
	}

	minor := d.Shift(decimals)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"amount": amount,
			"reason": "too many decimal places",
		})
	}
	if !minor.BigInt().IsUint64() {
		return 0, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"amount": amount,
			"reason": "amount out of range",
		})
	}
	return minor.BigInt().Uint64(), nil
}

// FormatAmount renders minor units as a base-unit decimal string with
// trailing zeros removed.
func FormatAmount(minor uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(minor), -decimals).String()
}
