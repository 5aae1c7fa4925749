package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

const hardened = 0x80000000

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		network  string
		expected chain.Family
	}{
		{chain.NetworkBitcoin, chain.FamilyUTXO},
		{chain.NetworkDogecoin, chain.FamilyUTXO},
		{"bip122:anything", chain.FamilyUTXO},
		{chain.NetworkEthereum, chain.FamilyEVM},
		{"eip155:137", chain.FamilyEVM},
		{chain.NetworkOsmosis, chain.FamilyCosmos},
		{chain.NetworkTHORChain, chain.FamilyCosmos},
		{chain.NetworkRipple, chain.FamilyRipple},
		{"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp", chain.FamilyUnsupported},
		{"", chain.FamilyUnsupported},
		{"BIP122:000000000019d6689c085ae165831e93", chain.FamilyUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, chain.Classify(tt.network))
		})
	}
}

func TestFamily_IsAccountBased(t *testing.T) {
	t.Parallel()
	assert.False(t, chain.FamilyUTXO.IsAccountBased())
	assert.False(t, chain.FamilyUnsupported.IsAccountBased())
	assert.True(t, chain.FamilyEVM.IsAccountBased())
	assert.True(t, chain.FamilyCosmos.IsAccountBased())
	assert.True(t, chain.FamilyRipple.IsAccountBased())
	assert.Equal(t, "unsupported", chain.FamilyUnsupported.String())
	assert.Equal(t, "utxo", chain.FamilyUTXO.String())
}

func TestUTXOCoinForPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		path  []uint32
		coin  string
		known bool
	}{
		{"bitcoin", []uint32{84 | hardened, 0 | hardened, 0 | hardened}, "Bitcoin", true},
		{"testnet", []uint32{44 | hardened, 1 | hardened, 0 | hardened}, "Testnet", true},
		{"litecoin", []uint32{44 | hardened, 2 | hardened, 0 | hardened}, "Litecoin", true},
		{"dogecoin", []uint32{44 | hardened, 3 | hardened, 0 | hardened}, "Dogecoin", true},
		{"dash", []uint32{44 | hardened, 5 | hardened, 0 | hardened}, "Dash", true},
		{"digibyte", []uint32{44 | hardened, 20 | hardened, 0 | hardened}, "DigiByte", true},
		{"zcash", []uint32{44 | hardened, 133 | hardened, 0 | hardened}, "Zcash", true},
		{"komodo", []uint32{44 | hardened, 141 | hardened, 0 | hardened}, "Komodo", true},
		{"bitcoin cash", []uint32{44 | hardened, 145 | hardened, 0 | hardened}, "BitcoinCash", true},
		{"unknown coin type", []uint32{44 | hardened, 9999 | hardened, 0 | hardened}, "Bitcoin", false},
		{"short path", []uint32{44 | hardened}, "Bitcoin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			coin, ok := chain.UTXOCoinForPath(tt.path)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.coin, coin.Name)
		})
	}
}

func TestAccountCoinNameAndSymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ethereum", chain.AccountCoinName(chain.NetworkEthereum))
	assert.Equal(t, "Ethereum", chain.AccountCoinName("eip155:56"))
	assert.Equal(t, "Osmosis", chain.AccountCoinName(chain.NetworkOsmosis))
	assert.Equal(t, "Cosmos", chain.AccountCoinName("cosmos:juno-1"))
	assert.Equal(t, "Ripple", chain.AccountCoinName(chain.NetworkRipple))
	assert.Empty(t, chain.AccountCoinName(chain.NetworkBitcoin))

	assert.Equal(t, "BTC", chain.Symbol(chain.NetworkBitcoin))
	assert.Equal(t, "DOGE", chain.Symbol(chain.NetworkDogecoin))
	assert.Equal(t, "RUNE", chain.Symbol(chain.NetworkTHORChain))
	assert.Empty(t, chain.Symbol("eip155:999999"))
}

func TestAssetID(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"bip122:000000000019d6689c085ae165831e93/slip44:0",
		chain.AssetID(chain.NetworkBitcoin, []uint32{84 | hardened, 0 | hardened, 0 | hardened}))
	assert.Equal(t,
		"eip155:1/slip44:60",
		chain.AssetID(chain.NetworkEthereum, []uint32{44 | hardened, 60 | hardened, 0 | hardened, 0, 0}))

	network, slip44, ok := chain.SplitAssetID("cosmos:cosmoshub-4/slip44:118")
	require.True(t, ok)
	assert.Equal(t, chain.NetworkCosmosHub, network)
	assert.Equal(t, uint32(118), slip44)

	_, _, ok = chain.SplitAssetID("cosmos:cosmoshub-4")
	assert.False(t, ok)
	_, _, ok = chain.SplitAssetID("/slip44:1")
	assert.False(t, ok)
	_, _, ok = chain.SplitAssetID("eip155:1/slip44:x")
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected uint64
		wantErr  bool
	}{
		{"1", 100_000_000, false},
		{"0.00000546", 546, false},
		{"0.015", 1_500_000, false},
		{" 2.5 ", 250_000_000, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"0.000000001", 0, true},
		{"1e30", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := chain.ParseAmount(tt.input, chain.SatoshiDecimals)
			if tt.wantErr {
				require.ErrorIs(t, err, kkerr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0.1", chain.FormatAmount(10_000_000, chain.SatoshiDecimals))
	assert.Equal(t, "0.00000546", chain.FormatAmount(546, chain.SatoshiDecimals))
	assert.Equal(t, "0", chain.FormatAmount(0, chain.SatoshiDecimals))
}
