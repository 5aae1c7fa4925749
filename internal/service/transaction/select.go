package transaction

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shopspring/decimal"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Outpoint names one output of a previous transaction.
type Outpoint struct {
	TxID string
	Vout uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// ParseOutpoint reads "txid:index". The txid must be 64 hex characters and
// is normalised to lower case.
func ParseOutpoint(s string) (Outpoint, error) {
	txid, index, ok := strings.Cut(strings.TrimSpace(s), ":")
	bad := func(reason string) error {
		return kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"outpoint": s,
			"reason":   reason,
		})
	}
	if !ok {
		return Outpoint{}, bad("expected txid:index")
	}
	if len(txid) != chainhash.MaxHashStringSize {
		return Outpoint{}, bad("txid must be 64 hex characters")
	}
	if _, err := hex.DecodeString(txid); err != nil {
		return Outpoint{}, bad("txid is not hex")
	}
	vout, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return Outpoint{}, bad("index is not a 32-bit unsigned integer")
	}
	return Outpoint{TxID: strings.ToLower(txid), Vout: uint32(vout)}, nil
}

// selectPercentage takes ceil(len*pct/100) inputs, at least one, after
// sorting by confirmations descending then amount ascending.
func selectPercentage(available []Input, pct decimal.Decimal) []Input {
	sorted := append([]Input(nil), available...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confirmations != sorted[j].Confirmations {
			return sorted[i].Confirmations > sorted[j].Confirmations
		}
		return sorted[i].Amount < sorted[j].Amount
	})

	n := int(decimal.NewFromInt(int64(len(sorted))).Mul(pct).Div(decimal.NewFromInt(100)).Ceil().IntPart())
	n = max(n, 1)
	n = min(n, len(sorted))
	return sorted[:n]
}

// selectExplicit resolves each requested outpoint.
func selectExplicit(available []Input, want []Outpoint) ([]Input, error) {
	byOutpoint := make(map[Outpoint]Input, len(available))
	for _, in := range available {
		byOutpoint[Outpoint{TxID: strings.ToLower(in.TxID), Vout: in.Vout}] = in
	}
	out := make([]Input, 0, len(want))
	seen := make(map[Outpoint]bool, len(want))
	for _, o := range want {
		if seen[o] {
			continue
		}
		seen[o] = true
		in, ok := byOutpoint[o]
		if !ok {
			return nil, kkerr.WithDetails(kkerr.ErrUTXONotFound, map[string]string{"outpoint": o.String()})
		}
		out = append(out, in)
	}
	return out, nil
}
