package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// AssetID builds the CAIP-19 native-asset identifier the pricing service keys
// balances by, e.g. "bip122:000000000019d6689c085ae165831e93/slip44:0".
// The slip44 index is the unhardened coin-type element of path.
func AssetID(networkID string, path []uint32) string {
	coinType := uint32(0)
	if len(path) >= 2 {
		coinType = path[1] &^ hardenedBit
	}
	return fmt.Sprintf("%s/slip44:%d", networkID, coinType)
}

// SplitAssetID returns the network and slip44 index of a native asset id.
func SplitAssetID(assetID string) (string, uint32, bool) {
	network, asset, ok := strings.Cut(assetID, "/slip44:")
	if !ok || network == "" {
		return "", 0, false
	}
	n, err := strconv.ParseUint(asset, 10, 32)
	if err != nil {
		return "", 0, false
	}
	return network, uint32(n), true
}
