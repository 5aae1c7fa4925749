// Package chain classifies the networks a derivation path can serve and maps
// them to the coin names, symbols and asset identifiers the device and the
// pricing service understand.
package chain

import (
	"strings"
)

// Family groups networks that share an address-derivation strategy.
type Family string

// Supported network families.
const (
	FamilyUnsupported Family = ""
	FamilyUTXO        Family = "utxo"
	FamilyEVM         Family = "evm"
	FamilyCosmos      Family = "cosmos"
	FamilyRipple      Family = "ripple"
)

// CAIP-2 namespace prefixes used to classify network identifiers.
const (
	prefixBIP122 = "bip122:"
	prefixEIP155 = "eip155:"
	prefixCosmos = "cosmos:"
	prefixRipple = "ripple:"
)

// Well-known network identifiers.
const (
	NetworkBitcoin     = "bip122:000000000019d6689c085ae165831e93"
	NetworkTestnet     = "bip122:000000000933ea01ad0ee984209779ba"
	NetworkLitecoin    = "bip122:12a765e31ffd4059bada1e25190f6e98"
	NetworkDogecoin    = "bip122:00000000001a91e3dace36e2be3bf030"
	NetworkDash        = "bip122:000007d91d1254d60e2dd1ae58038307"
	NetworkDigiByte    = "bip122:4966625a4b2851d9fdee139e56211a0d"
	NetworkZcash       = "bip122:00040fe8ec8471911baa1db1266ea15d"
	NetworkBitcoinCash = "bip122:000000000000000000651ef99cb9fcbe"
	NetworkKomodo      = "bip122:027e3758c3a65b12aa1046462b486d0a"
	NetworkEthereum    = "eip155:1"
	NetworkCosmosHub   = "cosmos:cosmoshub-4"
	NetworkOsmosis     = "cosmos:osmosis-1"
	NetworkTHORChain   = "cosmos:thorchain-mainnet-v1"
	NetworkMayachain   = "cosmos:mayachain-mainnet-v1"
	NetworkRipple      = "ripple:4109c6f2045fc7eff4cde8f9905d19c2"
)

// SLIP-44 coin types of the UTXO chains the device signs for.
const (
	CoinTypeBitcoin     uint32 = 0
	CoinTypeTestnet     uint32 = 1
	CoinTypeLitecoin    uint32 = 2
	CoinTypeDogecoin    uint32 = 3
	CoinTypeDash        uint32 = 5
	CoinTypeDigiByte    uint32 = 20
	CoinTypeZcash       uint32 = 133
	CoinTypeKomodo      uint32 = 141
	CoinTypeBitcoinCash uint32 = 145
)

// hardenedBit marks a hardened BIP-32 index.
const hardenedBit uint32 = 0x80000000

// Coin describes a UTXO coin known to the device firmware.
type Coin struct {
	Name     string // device coin_name
	Symbol   string
	CoinType uint32
	Network  string
}

//nolint:gochecknoglobals // Static lookup table
var utxoCoins = map[uint32]Coin{
	CoinTypeBitcoin:     {Name: "Bitcoin", Symbol: "BTC", CoinType: CoinTypeBitcoin, Network: NetworkBitcoin},
	CoinTypeTestnet:     {Name: "Testnet", Symbol: "TEST", CoinType: CoinTypeTestnet, Network: NetworkTestnet},
	CoinTypeLitecoin:    {Name: "Litecoin", Symbol: "LTC", CoinType: CoinTypeLitecoin, Network: NetworkLitecoin},
	CoinTypeDogecoin:    {Name: "Dogecoin", Symbol: "DOGE", CoinType: CoinTypeDogecoin, Network: NetworkDogecoin},
	CoinTypeDash:        {Name: "Dash", Symbol: "DASH", CoinType: CoinTypeDash, Network: NetworkDash},
	CoinTypeDigiByte:    {Name: "DigiByte", Symbol: "DGB", CoinType: CoinTypeDigiByte, Network: NetworkDigiByte},
	CoinTypeZcash:       {Name: "Zcash", Symbol: "ZEC", CoinType: CoinTypeZcash, Network: NetworkZcash},
	CoinTypeKomodo:      {Name: "Komodo", Symbol: "KMD", CoinType: CoinTypeKomodo, Network: NetworkKomodo},
	CoinTypeBitcoinCash: {Name: "BitcoinCash", Symbol: "BCH", CoinType: CoinTypeBitcoinCash, Network: NetworkBitcoinCash},
}

// accountCoin describes the coin served by an account-based network.
type accountCoin struct {
	name   string
	symbol string
}

//nolint:gochecknoglobals // Static lookup table
var accountCoins = map[string]accountCoin{
	NetworkEthereum:  {name: "Ethereum", symbol: "ETH"},
	NetworkCosmosHub: {name: "Cosmos", symbol: "ATOM"},
	NetworkOsmosis:   {name: "Osmosis", symbol: "OSMO"},
	NetworkTHORChain: {name: "THORChain", symbol: "RUNE"},
	NetworkMayachain: {name: "Mayachain", symbol: "CACAO"},
	NetworkRipple:    {name: "Ripple", symbol: "XRP"},
}

// Classify returns the family of a CAIP-2 network identifier.
// Unknown namespaces return FamilyUnsupported.
func Classify(networkID string) Family {
	switch {
	case strings.HasPrefix(networkID, prefixBIP122):
		return FamilyUTXO
	case strings.HasPrefix(networkID, prefixEIP155):
		return FamilyEVM
	case strings.HasPrefix(networkID, prefixCosmos):
		return FamilyCosmos
	case strings.HasPrefix(networkID, prefixRipple):
		return FamilyRipple
	default:
		return FamilyUnsupported
	}
}

// IsAccountBased reports whether the family derives a single address from
// the master-level path instead of an account xpub.
func (f Family) IsAccountBased() bool {
	return f == FamilyEVM || f == FamilyCosmos || f == FamilyRipple
}

// String returns the family name.
func (f Family) String() string {
	if f == FamilyUnsupported {
		return "unsupported"
	}
	return string(f)
}

// UTXOCoinForPath resolves the UTXO coin from the hardened coin-type element
// of an account path. The boolean is false when the coin type is not in the
// table or the path is too short; callers fall back to Bitcoin.
func UTXOCoinForPath(path []uint32) (Coin, bool) {
	if len(path) < 2 {
		return utxoCoins[CoinTypeBitcoin], false
	}
	coin, ok := utxoCoins[path[1]&^hardenedBit]
	if !ok {
		return utxoCoins[CoinTypeBitcoin], false
	}
	return coin, true
}

// UTXOCoinByType returns the coin registered for a SLIP-44 coin type.
func UTXOCoinByType(coinType uint32) (Coin, bool) {
	coin, ok := utxoCoins[coinType]
	return coin, ok
}

// AccountCoinName returns the device coin name for an account-based network.
func AccountCoinName(networkID string) string {
	if c, ok := accountCoins[networkID]; ok {
		return c.name
	}
	switch Classify(networkID) {
	case FamilyEVM:
		return "Ethereum"
	case FamilyCosmos:
		return "Cosmos"
	case FamilyRipple:
		return "Ripple"
	case FamilyUTXO, FamilyUnsupported:
	}
	return ""
}

// Symbol returns the ticker for a network, or "" when unknown.
func Symbol(networkID string) string {
	if c, ok := accountCoins[networkID]; ok {
		return c.symbol
	}
	for _, coin := range utxoCoins {
		if coin.Network == networkID {
			return coin.Symbol
		}
	}
	return ""
}

// UTXOCoinByName returns the coin whose device name matches, ignoring case.
func UTXOCoinByName(name string) (Coin, bool) {
	for _, coin := range utxoCoins {
		if strings.EqualFold(coin.Name, name) {
			return coin, true
		}
	}
	return Coin{}, false
}
