// Package transaction builds unsigned UTXO transactions from the device's
// cached account keys and drives the device through signing them.
//
// Building never touches the device. Every fee passes the safety gate in
// CheckFee before a transaction is returned.
package transaction

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Defaults for a BuildRequest.
const (
	DefaultCoin       = "Bitcoin"
	DefaultScriptType = device.ScriptP2WPKH

	// txVersion is the version of transactions this package builds.
	txVersion = 1

	// lowConfirmations is the confirmation count below which spending an
	// input draws a warning.
	lowConfirmations = 6

	// roundAmount is the granularity at which an output amount looks chosen
	// by a person, which tells observers which output is the payment.
	roundAmount = 100_000
)

// Config holds dependencies for the transaction service.
type Config struct {
	Store  XpubStore
	UTXOs  UTXOSource
	Device device.Exclusive // needed only by Sign
	Limits Limits
	Logger LogWriter
}

// Service builds and signs transactions.
type Service struct {
	store  XpubStore
	utxos  UTXOSource
	device device.Exclusive
	limits Limits
	logger LogWriter
}

// NewService creates a transaction service. Zero limits mean DefaultLimits;
// limits above the hard maximum are clamped down.
func NewService(cfg *Config) *Service {
	return &Service{
		store:  cfg.Store,
		utxos:  cfg.UTXOs,
		device: cfg.Device,
		limits: cfg.Limits.clamped(),
		logger: cfg.Logger,
	}
}

// plannedOutput is a validated recipient.
type plannedOutput struct {
	address string
	amount  uint64
}

// Build validates req, gathers unspent outputs for the device's account
// keys, selects inputs and returns an unsigned transaction whose fee has
// passed the safety gate.
//
//nolint:gocognit,gocyclo // Sequential build steps read best in one place
func (s *Service) Build(ctx context.Context, req *BuildRequest) (*UnsignedTx, error) {
	if req == nil {
		return nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"reason": "build request required"})
	}
	coinName := req.Coin
	if coinName == "" {
		coinName = DefaultCoin
	}
	symbol := strings.ToUpper(coinName)
	if c, ok := chain.UTXOCoinByName(coinName); ok {
		coinName, symbol = c.Name, c.Symbol
	}
	scriptType := req.ScriptType
	if scriptType == "" {
		scriptType = DefaultScriptType
	}
	inputType, changeType, ok := device.ScriptTypes(scriptType)
	if !ok {
		return nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"script_type": scriptType})
	}
	limits := s.limits.tightened(req.MaxFee, req.MaxFeePercent)

	planned, outpoints, err := s.validate(req, limits)
	if err != nil {
		return nil, err
	}

	// Funding source: the device's cached account keys for this coin.
	xpubs, err := s.store.Xpubs(ctx, req.DeviceID, scriptType)
	if err != nil {
		return nil, err
	}
	var accounts []accountKey
	for _, x := range xpubs {
		if strings.EqualFold(x.CoinName, coinName) {
			accounts = append(accounts, accountKey{xpub: x.Address, path: x.Path})
		}
	}
	if len(accounts) == 0 {
		return nil, kkerr.WithSuggestion(
			kkerr.WithDetails(kkerr.ErrNoFundsSource, map[string]string{
				"device_id":   req.DeviceID,
				"coin":        coinName,
				"script_type": scriptType,
			}),
			"run frontload to cache the device's account keys")
	}

	available, err := s.unspent(ctx, symbol, accounts, inputType)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, kkerr.WithDetails(kkerr.ErrNoUTXOs, map[string]string{"coin": coinName, "script_type": scriptType})
	}

	var selected []Input
	switch req.Mode {
	case SelectPercentage:
		selected = selectPercentage(available, req.Percentage)
	case SelectExplicit:
		selected, err = selectExplicit(available, outpoints)
		if err != nil {
			return nil, err
		}
	case SelectMax:
		selected = available
	}

	tx := &UnsignedTx{
		Coin:    coinName,
		Version: txVersion,
		FeeRate: req.FeeRate,
		Inputs:  selected,
	}
	inputTotal, err := tx.InputTotal()
	if err != nil {
		return nil, err
	}

	if req.Mode == SelectMax {
		tx.Size = EstimateSize(len(selected), 1)
		tx.Fee = tx.Size * req.FeeRate
		if inputTotal <= tx.Fee || inputTotal-tx.Fee < limits.DustLimit {
			return nil, insufficient(inputTotal, 0, tx.Fee)
		}
		amount := inputTotal - tx.Fee
		if err := CheckFee(tx.Fee, req.FeeRate, amount, limits); err != nil {
			return nil, err
		}
		tx.Outputs = []Output{{Address: planned[0].address, Amount: amount, ScriptType: device.PayToAddress}}
	} else {
		var outputTotal uint64
		for _, p := range planned {
			if outputTotal, err = addAmount("amount", outputTotal, p.amount); err != nil {
				return nil, err
			}
			tx.Outputs = append(tx.Outputs, Output{Address: p.address, Amount: p.amount, ScriptType: device.PayToAddress})
		}

		// Sized with a change output; if change turns out to be dust it is
		// left to the fee.
		tx.Size = EstimateSize(len(selected), len(planned)+1)
		tx.Fee = tx.Size * req.FeeRate
		if err := CheckFee(tx.Fee, req.FeeRate, outputTotal, limits); err != nil {
			return nil, err
		}
		if inputTotal < outputTotal+tx.Fee {
			return nil, insufficient(inputTotal, outputTotal, tx.Fee)
		}
		change := inputTotal - outputTotal - tx.Fee
		if change > limits.DustLimit {
			tx.Outputs = append(tx.Outputs, Output{
				AddressN:   changePath(accounts[0].path),
				Amount:     change,
				ScriptType: changeType,
				Change:     true,
			})
		} else if change > 0 {
			tx.Fee += change
			tx.Warnings = append(tx.Warnings, fmt.Sprintf("change of %s is dust and is added to the fee", btcutil.Amount(change))) //nolint:gosec // below dust limit
			if err := CheckFee(tx.Fee, req.FeeRate, outputTotal, limits); err != nil {
				return nil, err
			}
		}
	}

	tx.Warnings = append(tx.Warnings, warnings(tx)...)
	s.debug("tx build: %s %d inputs, %d outputs, size %d, fee %d (%d sat/B)",
		req.Mode, len(tx.Inputs), len(tx.Outputs), tx.Size, tx.Fee, tx.FeeRate)
	return tx, nil
}

// validate checks req before anything is fetched.
func (s *Service) validate(req *BuildRequest, limits Limits) ([]plannedOutput, []Outpoint, error) {
	if len(req.Recipients) == 0 {
		return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"recipients": "at least one recipient is required"})
	}
	if req.DeviceID == "" {
		return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"device_id": "required"})
	}
	if req.FeeRate < limits.MinFeeRate || req.FeeRate > limits.MaxFeeRate {
		return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"fee_rate": strconv.FormatUint(req.FeeRate, 10),
			"min":      strconv.FormatUint(limits.MinFeeRate, 10),
			"max":      strconv.FormatUint(limits.MaxFeeRate, 10),
		})
	}

	var outpoints []Outpoint
	switch req.Mode {
	case SelectPercentage:
		if !req.Percentage.IsPositive() || req.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"percentage": req.Percentage.String(),
				"reason":     "must be greater than 0 and at most 100",
			})
		}
	case SelectExplicit:
		if len(req.Outpoints) == 0 {
			return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"outpoints": "at least one txid:index is required"})
		}
		for _, raw := range req.Outpoints {
			o, err := ParseOutpoint(raw)
			if err != nil {
				return nil, nil, err
			}
			outpoints = append(outpoints, o)
		}
	case SelectMax:
		if len(req.Recipients) != 1 {
			return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"recipients": strconv.Itoa(len(req.Recipients)),
				"reason":     "maximum send pays exactly one recipient",
			})
		}
	default:
		return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"mode": req.Mode.String()})
	}

	planned := make([]plannedOutput, 0, len(req.Recipients))
	for i, r := range req.Recipients {
		address := strings.TrimSpace(r.Address)
		if address == "" {
			return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"recipient": strconv.Itoa(i),
				"address":   "required",
			})
		}
		if req.Mode == SelectMax {
			planned = append(planned, plannedOutput{address: address})
			continue
		}
		amount, err := chain.ParseAmount(r.Amount, chain.SatoshiDecimals)
		if err != nil {
			return nil, nil, kkerr.Wrap(err, "recipient %d amount", i)
		}
		if amount > MaxAmount {
			return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"recipient": strconv.Itoa(i),
				"amount":    strconv.FormatUint(amount, 10),
				"limit":     strconv.FormatUint(MaxAmount, 10),
			})
		}
		if amount < limits.DustLimit {
			return nil, nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"recipient":  strconv.Itoa(i),
				"amount":     strconv.FormatUint(amount, 10),
				"dust_limit": strconv.FormatUint(limits.DustLimit, 10),
			})
		}
		planned = append(planned, plannedOutput{address: address, amount: amount})
	}
	return planned, outpoints, nil
}

// accountKey is a cached xpub and the account path it was derived at.
type accountKey struct {
	xpub string
	path []uint32
}

// unspent lists and merges the unspent outputs of every account key.
// Outputs without a usable derivation path cannot be signed and are left
// out.
func (s *Service) unspent(ctx context.Context, symbol string, accounts []accountKey, scriptType device.InputScriptType) ([]Input, error) {
	seen := make(map[Outpoint]bool)
	var out []Input
	for _, acct := range accounts {
		utxos, err := s.utxos.ListUnspent(ctx, symbol, acct.xpub)
		if err != nil {
			return nil, kkerr.Wrap(err, "listing unspent outputs")
		}
		for _, u := range utxos {
			key := Outpoint{TxID: strings.ToLower(u.TxID), Vout: u.Vout}
			if seen[key] {
				continue
			}
			seen[key] = true

			sats, ok := u.Sats()
			if !ok || sats > MaxAmount {
				s.warn("tx build: %s has an unusable value %s, skipped", key, u.Value)
				continue
			}
			path, err := device.ParsePath(u.Path)
			if err != nil || len(path) == 0 {
				s.warn("tx build: %s has no usable path %q, skipped", key, u.Path)
				continue
			}
			out = append(out, Input{
				TxID:          key.TxID,
				Vout:          u.Vout,
				Amount:        sats,
				AddressN:      path,
				ScriptType:    scriptType,
				Confirmations: u.Confirmations,
				Address:       u.Address,
				PrevTxHex:     u.Hex,
			})
		}
	}
	return out, nil
}

// changePath is the first internal-chain address of the funding account.
func changePath(account []uint32) []uint32 {
	return append(append([]uint32(nil), account...), 1, 0)
}

func insufficient(inputs, outputs, fee uint64) error {
	return kkerr.WithDetails(kkerr.ErrInsufficientFunds, map[string]string{
		"inputs":  strconv.FormatUint(inputs, 10),
		"outputs": strconv.FormatUint(outputs, 10),
		"fee":     strconv.FormatUint(fee, 10),
	})
}

// warnings flags privacy and reliability concerns that do not block the
// transaction.
func warnings(tx *UnsignedTx) []string {
	var out []string
	for _, in := range tx.Inputs {
		if in.Confirmations < lowConfirmations {
			out = append(out, fmt.Sprintf("input %s:%d has only %d confirmations", in.TxID, in.Vout, in.Confirmations))
		}
	}
	for i, o := range tx.Outputs {
		if !o.Change && o.Amount%roundAmount == 0 {
			out = append(out, fmt.Sprintf("output %d amount %s is a round number and may reveal the payment", i, btcutil.Amount(o.Amount))) //nolint:gosec // satoshi amounts fit in int64
		}
	}
	return out
}

func (s *Service) debug(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(format, args...)
	}
}

func (s *Service) warn(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(format, args...)
	}
}
