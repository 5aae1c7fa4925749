package frontload

import (
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tyler-smith/go-bip32"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// ReceivePaths returns the first n receive-address paths (change 0) under
// an account path. A 3-element account path gets change and index
// appended; a 5-element path has its last element replaced by the index.
// Any other length yields false.
func ReceivePaths(account []uint32, n int) ([][]uint32, bool) {
	var base []uint32
	switch len(account) {
	case 3:
		base = append(slices.Clone(account), 0, 0)
	case 5:
		base = slices.Clone(account)
	default:
		return nil, false
	}

	out := make([][]uint32, n)
	for i := range out {
		p := slices.Clone(base)
		p[4] = uint32(i) //nolint:gosec // n is a small configured count
		out[i] = p
	}
	return out, true
}

// validateXpub checks that the device returned a well-formed public
// extended key.
func validateXpub(xpub string) error {
	key, err := bip32.B58Deserialize(xpub)
	if err != nil {
		return kkerr.WithDetails(kkerr.WithCause(kkerr.ErrUnexpectedState, err), map[string]string{
			"reason": "device returned an invalid xpub",
		})
	}
	if key.IsPrivate {
		return kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
			"reason": "device returned a private extended key",
		})
	}
	return nil
}

// normalizeEVMAddress returns the EIP-55 checksummed form of addr.
func normalizeEVMAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
			"reason":  "device returned an invalid EVM address",
			"address": addr,
		})
	}
	return common.HexToAddress(addr).Hex(), nil
}
