package cache

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Balance is a priced balance of one asset held by one pubkey.
type Balance struct {
	DeviceID    string          `json:"device_id"`
	AssetID     string          `json:"caip"`
	Pubkey      string          `json:"pubkey"`
	Balance     decimal.Decimal `json:"balance"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	Symbol      string          `json:"symbol"`
	NetworkID   string          `json:"network_id"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Now returns the store's current time in the form balances are stamped with.
func (s *Store) Now() time.Time {
	return s.timestamp()
}

// SaveBalances upserts balances for deviceID in one transaction. Rows with a
// zero LastUpdated are stamped with the current time.
func (s *Store) SaveBalances(ctx context.Context, deviceID string, balances []Balance) error {
	if len(balances) == 0 {
		return nil
	}
	now := s.timestamp()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range balances {
			row := balanceRow{
				DeviceID:    deviceID,
				AssetID:     b.AssetID,
				Pubkey:      b.Pubkey,
				Balance:     b.Balance,
				PriceUSD:    b.PriceUSD,
				ValueUSD:    b.ValueUSD,
				Symbol:      b.Symbol,
				NetworkID:   b.NetworkID,
				LastUpdated: b.LastUpdated.UTC(),
			}
			if b.LastUpdated.IsZero() {
				row.LastUpdated = now
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "device_id"}, {Name: "asset_id"}, {Name: "pubkey"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"balance", "price_usd", "value_usd", "symbol", "network_id", "last_updated",
				}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageError("save balances", err)
	}
	return nil
}

// ClearOldBalances deletes balances of deviceID last updated before cutoff,
// i.e. assets the latest refresh no longer reported. It returns the number
// of rows removed.
func (s *Store) ClearOldBalances(ctx context.Context, deviceID string, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res := s.db.WithContext(ctx).
		Where("device_id = ? AND last_updated < ?", deviceID, cutoff.UTC()).
		Delete(&balanceRow{})
	if res.Error != nil {
		return 0, storageError("clear balances", res.Error)
	}
	return res.RowsAffected, nil
}

// CachedBalances returns every balance of deviceID.
func (s *Store) CachedBalances(ctx context.Context, deviceID string) ([]Balance, error) {
	var rows []balanceRow
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("asset_id, pubkey").Find(&rows).Error
	if err != nil {
		return nil, storageError("list balances", err)
	}
	out := make([]Balance, len(rows))
	for i, r := range rows {
		out[i] = Balance{
			DeviceID:    r.DeviceID,
			AssetID:     r.AssetID,
			Pubkey:      r.Pubkey,
			Balance:     r.Balance,
			PriceUSD:    r.PriceUSD,
			ValueUSD:    r.ValueUSD,
			Symbol:      r.Symbol,
			NetworkID:   r.NetworkID,
			LastUpdated: r.LastUpdated,
		}
	}
	return out, nil
}

// BalancesNeedRefresh reports true when deviceID has no balances or the
// newest one is older than the freshness window.
func (s *Store) BalancesNeedRefresh(ctx context.Context, deviceID string) (bool, error) {
	var newest balanceRow
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("last_updated DESC").Take(&newest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, storageError("check balances", err)
	}
	return s.timestamp().Sub(newest.LastUpdated) > s.freshness, nil
}

// TotalValueUSD sums the USD value of every balance of deviceID.
func (s *Store) TotalValueUSD(ctx context.Context, deviceID string) (decimal.Decimal, error) {
	balances, err := s.CachedBalances(ctx, deviceID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.ValueUSD)
	}
	return total, nil
}
