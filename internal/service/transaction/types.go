package transaction

import (
	"github.com/shopspring/decimal"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
)

// SelectionMode decides which unspent outputs fund a transaction.
type SelectionMode int

const (
	// SelectPercentage spends a fraction of the available outputs, preferring
	// well-confirmed small ones.
	SelectPercentage SelectionMode = iota
	// SelectExplicit spends exactly the listed outpoints.
	SelectExplicit
	// SelectMax spends every available output to a single recipient, with no
	// change.
	SelectMax
)

func (m SelectionMode) String() string {
	switch m {
	case SelectPercentage:
		return "percentage"
	case SelectExplicit:
		return "explicit"
	case SelectMax:
		return "max"
	default:
		return "unknown"
	}
}

// Recipient is one payment. Amount is in base units, e.g. "0.015".
// In SelectMax mode the amount is ignored.
type Recipient struct {
	Address string
	Amount  string
}

// BuildRequest describes the transaction to build.
type BuildRequest struct {
	DeviceID   string
	Coin       string // device coin name, default "Bitcoin"
	ScriptType string // default p2wpkh

	Recipients []Recipient
	FeeRate    uint64 // satoshis per byte

	Mode       SelectionMode
	Percentage decimal.Decimal // SelectPercentage, in (0, 100]
	Outpoints  []string        // SelectExplicit, "txid:index"

	// MaxFee and MaxFeePercent may only tighten the configured limits.
	// Zero keeps the configured value.
	MaxFee        uint64
	MaxFeePercent uint64
}

// Input is a selected unspent output.
type Input struct {
	TxID          string                 `json:"txid"`
	Vout          uint32                 `json:"vout"`
	Amount        uint64                 `json:"amount"`
	AddressN      []uint32               `json:"address_n"`
	ScriptType    device.InputScriptType `json:"script_type"`
	Confirmations int64                  `json:"confirmations"`
	Address       string                 `json:"address,omitempty"`

	// PrevTxHex is the raw funding transaction. The device asks for parts
	// of it while signing.
	PrevTxHex string `json:"prev_tx_hex,omitempty"`
}

// Output is a payment or change output.
type Output struct {
	Address    string                  `json:"address,omitempty"`
	AddressN   []uint32                `json:"address_n,omitempty"`
	Amount     uint64                  `json:"amount"`
	ScriptType device.OutputScriptType `json:"script_type"`
	Change     bool                    `json:"change"`
}

// UnsignedTx is a built transaction ready for the device. It is never
// persisted.
type UnsignedTx struct {
	Coin     string   `json:"coin"`
	Version  uint32   `json:"version"`
	LockTime uint32   `json:"lock_time"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	Fee      uint64   `json:"fee"`
	FeeRate  uint64   `json:"fee_rate"`
	Size     uint64   `json:"size"`
	Warnings []string `json:"warnings,omitempty"`
}

// InputTotal is the sum of input amounts.
func (tx *UnsignedTx) InputTotal() (uint64, error) {
	var total uint64
	for _, in := range tx.Inputs {
		var err error
		if total, err = addAmount("input", total, in.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// OutputTotal is the sum of output amounts, change included.
func (tx *UnsignedTx) OutputTotal() (uint64, error) {
	return tx.outputSum(true)
}

// PaymentTotal is the sum of the non-change outputs, the value the fee is
// weighed against.
func (tx *UnsignedTx) PaymentTotal() (uint64, error) {
	return tx.outputSum(false)
}

func (tx *UnsignedTx) outputSum(withChange bool) (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if out.Change && !withChange {
			continue
		}
		var err error
		if total, err = addAmount("output", total, out.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// SignedTx is the device's result.
type SignedTx struct {
	TxID         string   `json:"txid,omitempty"`
	Signatures   []string `json:"signatures"`
	SerializedTx string   `json:"serialized_tx"`
}
