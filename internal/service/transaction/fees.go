package transaction

import (
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Size model. One figure per input and output regardless of script type:
// it overestimates segwit spends, which keeps fees on the safe side.
const (
	InputSize    = 148
	OutputSize   = 34
	OverheadSize = 10
)

// MaxAmount is the largest value in satoshis a single amount or a total
// may carry: the coin's entire supply.
const MaxAmount = uint64(btcutil.MaxSatoshi)

// Limits bounds fees and amounts.
type Limits struct {
	MaxFee        uint64 // satoshis
	MaxFeePercent uint64 // of the total output value
	MinFeeRate    uint64 // satoshis per byte
	MaxFeeRate    uint64
	DustLimit     uint64
}

// DefaultLimits returns the hard limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFee:        config.HardMaxFee,
		MaxFeePercent: config.HardMaxFeePercent,
		MinFeeRate:    1,
		MaxFeeRate:    config.HardMaxFeeRate,
		DustLimit:     config.DustLimit,
	}
}

// LimitsFromConfig converts the fee section of the configuration.
func LimitsFromConfig(c config.FeesConfig) Limits {
	return Limits{
		MaxFee:        c.MaxFee,
		MaxFeePercent: c.MaxFeePercent,
		MinFeeRate:    c.MinFeeRate,
		MaxFeeRate:    c.MaxFeeRate,
		DustLimit:     c.DustLimit,
	}.clamped()
}

// clamped never lets a limit exceed the hard maximum, and fills zero
// values with defaults.
func (l Limits) clamped() Limits {
	d := DefaultLimits()
	if l.MaxFee == 0 || l.MaxFee > d.MaxFee {
		l.MaxFee = d.MaxFee
	}
	if l.MaxFeePercent == 0 || l.MaxFeePercent > d.MaxFeePercent {
		l.MaxFeePercent = d.MaxFeePercent
	}
	if l.MaxFeeRate == 0 || l.MaxFeeRate > d.MaxFeeRate {
		l.MaxFeeRate = d.MaxFeeRate
	}
	if l.MinFeeRate == 0 || l.MinFeeRate > l.MaxFeeRate {
		l.MinFeeRate = d.MinFeeRate
	}
	if l.DustLimit == 0 {
		l.DustLimit = d.DustLimit
	}
	return l
}

// tightened applies per-request overrides, which may only lower limits.
func (l Limits) tightened(maxFee, maxPercent uint64) Limits {
	if maxFee > 0 && maxFee < l.MaxFee {
		l.MaxFee = maxFee
	}
	if maxPercent > 0 && maxPercent < l.MaxFeePercent {
		l.MaxFeePercent = maxPercent
	}
	return l
}

// EstimateSize returns the estimated size in bytes of a transaction.
func EstimateSize(inputs, outputs int) uint64 {
	return uint64(OverheadSize + InputSize*inputs + OutputSize*outputs) //nolint:gosec // counts are small and non-negative
}

// CheckFee is the safety gate. A fee equal to a limit passes; anything
// above either the absolute ceiling or the percentage of the output value
// is rejected with the numbers that tripped it.
func CheckFee(fee, feeRate, outputs uint64, limits Limits) error {
	if fee > limits.MaxFee {
		return kkerr.WithSuggestion(
			kkerr.WithDetails(kkerr.ErrSafetyLimitExceeded, map[string]string{
				"fee":       strconv.FormatUint(fee, 10),
				"fee_btc":   btcutil.Amount(fee).String(),           //nolint:gosec // satoshi amounts fit in int64
				"fee_rate":  strconv.FormatUint(feeRate, 10),
				"limit":     strconv.FormatUint(limits.MaxFee, 10),
				"limit_btc": btcutil.Amount(limits.MaxFee).String(), //nolint:gosec // satoshi amounts fit in int64
			}),
			"lower the fee rate or spend fewer inputs")
	}
	if outputs == 0 || fee*100 > outputs*limits.MaxFeePercent {
		return kkerr.WithSuggestion(
			kkerr.WithDetails(kkerr.ErrSafetyLimitExceeded, map[string]string{
				"fee":         strconv.FormatUint(fee, 10),
				"fee_rate":    strconv.FormatUint(feeRate, 10),
				"amount":      strconv.FormatUint(outputs, 10),
				"percent":     feePercent(fee, outputs),
				"max_percent": strconv.FormatUint(limits.MaxFeePercent, 10),
			}),
			"the fee would be out of proportion to the amount sent")
	}
	return nil
}

// feePercent renders fee as a percentage of outputs with two decimals.
func feePercent(fee, outputs uint64) string {
	if outputs == 0 {
		return "inf"
	}
	f := decimal.NewFromUint64(fee).Mul(decimal.NewFromInt(100))
	return f.DivRound(decimal.NewFromUint64(outputs), 2).StringFixed(2)
}

// addAmount returns total+amount, refusing sums past MaxAmount so totals
// never wrap.
func addAmount(field string, total, amount uint64) (uint64, error) {
	if amount > MaxAmount || total > MaxAmount-amount {
		return 0, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			field:    strconv.FormatUint(amount, 10),
			"total":  strconv.FormatUint(total, 10),
			"limit":  strconv.FormatUint(MaxAmount, 10),
			"reason": "amount exceeds the coin supply",
		})
	}
	return total + amount, nil
}
