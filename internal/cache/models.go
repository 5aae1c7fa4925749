package cache

import (
	"time"

	"github.com/shopspring/decimal"
)

// featuresRow holds the last feature response of a device as a JSON blob.
type featuresRow struct {
	DeviceID  string `gorm:"primaryKey"`
	Blob      []byte
	UpdatedAt time.Time
}

func (featuresRow) TableName() string { return "features" }

// pathRow is one global derivation path. Lists are stored as JSON text.
type pathRow struct {
	ID                   uint     `gorm:"primaryKey"`
	Note                 string   `gorm:"uniqueIndex;not null"`
	ScriptType           string   `gorm:"not null"`
	PathType             string   // "xpub" or "address"
	Curve                string
	AddressNList         []uint32 `gorm:"serializer:json"`
	AddressNListMaster   []uint32 `gorm:"serializer:json"`
	Networks             []string `gorm:"serializer:json"`
	AvailableScriptTypes []string `gorm:"serializer:json"`
}

func (pathRow) TableName() string { return "paths" }

// addressRow is a cached address or xpub. The key is
// (device_id, coin_name, script_type, path); Path is the "m/..." form.
type addressRow struct {
	ID         uint   `gorm:"primaryKey"`
	DeviceID   string `gorm:"uniqueIndex:idx_address_key;not null"`
	CoinName   string `gorm:"uniqueIndex:idx_address_key;not null"`
	ScriptType string `gorm:"uniqueIndex:idx_address_key;not null"`
	Path       string `gorm:"uniqueIndex:idx_address_key;not null"`
	NetworkID  string
	Address    string `gorm:"not null"`
	Pubkey     string
	CreatedAt  time.Time
}

func (addressRow) TableName() string { return "addresses" }

// balanceRow is one priced balance from the latest successful refresh.
type balanceRow struct {
	ID          uint            `gorm:"primaryKey"`
	DeviceID    string          `gorm:"uniqueIndex:idx_balance_key;index;not null"`
	AssetID     string          `gorm:"uniqueIndex:idx_balance_key;not null"`
	Pubkey      string          `gorm:"uniqueIndex:idx_balance_key;not null"`
	Balance     decimal.Decimal `gorm:"type:text"`
	PriceUSD    decimal.Decimal `gorm:"type:text"`
	ValueUSD    decimal.Decimal `gorm:"type:text"`
	Symbol      string
	NetworkID   string
	LastUpdated time.Time `gorm:"index"`
}

func (balanceRow) TableName() string { return "balances" }
