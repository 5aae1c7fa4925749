package cache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Address is a cached address, or an account xpub when ScriptType carries
// the "_xpub" suffix.
type Address struct {
	DeviceID   string   `json:"device_id"`
	CoinName   string   `json:"coin_name"`
	ScriptType string   `json:"script_type"`
	Path       []uint32 `json:"address_n_list"`
	NetworkID  string   `json:"network_id,omitempty"`
	Address    string   `json:"address"`
	Pubkey     string   `json:"pubkey,omitempty"`
}

// IsXpub reports whether a holds an account xpub.
func (a Address) IsXpub() bool {
	return strings.HasSuffix(a.ScriptType, catalog.XpubSuffix)
}

// QueryKey returns the value the pricing service knows this entry by.
func (a Address) QueryKey() string {
	if a.Pubkey != "" {
		return a.Pubkey
	}
	return a.Address
}

func (r addressRow) toAddress() (Address, error) {
	path, err := device.ParsePath(r.Path)
	if err != nil {
		return Address{}, storageError("decode address path", err)
	}
	return Address{
		DeviceID:   r.DeviceID,
		CoinName:   r.CoinName,
		ScriptType: r.ScriptType,
		Path:       path,
		NetworkID:  r.NetworkID,
		Address:    r.Address,
		Pubkey:     r.Pubkey,
	}, nil
}

// addressIndex is the in-memory view of one device's cached addresses.
type addressIndex struct {
	deviceID string
	entries  sync.Map // indexKey -> Address
}

func newAddressIndex(deviceID string) *addressIndex {
	return &addressIndex{deviceID: deviceID}
}

func indexKey(coinName, scriptType string, path []uint32) string {
	return coinName + "|" + scriptType + "|" + device.FormatPath(path)
}

func (i *addressIndex) put(a Address) {
	i.entries.Store(indexKey(a.CoinName, a.ScriptType, a.Path), a)
}

func (i *addressIndex) get(coinName, scriptType string, path []uint32) (Address, bool) {
	v, ok := i.entries.Load(indexKey(coinName, scriptType, path))
	if !ok {
		return Address{}, false
	}
	return v.(Address), true //nolint:forcetypeassert // only Address values are stored
}

// CachedAddress looks up an entry of the loaded device. It only consults the
// in-memory index; before LoadDevice it always misses.
func (s *Store) CachedAddress(coinName, scriptType string, path []uint32) (Address, bool) {
	idx := s.index.Load()
	if idx == nil {
		s.metrics.RecordCacheMiss()
		return Address{}, false
	}
	a, ok := idx.get(coinName, scriptType, path)
	if !ok {
		s.metrics.RecordCacheMiss()
		return Address{}, false
	}
	s.metrics.RecordCacheHit()
	a.Path = slices.Clone(a.Path)
	return a, true
}

// SaveAddress stores a derived address. Saving the same value again is a
// no-op apart from filling in a missing pubkey or network. Saving a
// different address for an existing key fails with ErrAddressMismatch and
// leaves the cached value in place.
func (s *Store) SaveAddress(ctx context.Context, a Address) error {
	if err := validateAddress(a); err != nil {
		return err
	}
	a.Path = slices.Clone(a.Path)
	pathText := device.FormatPath(a.Path)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing addressRow
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND coin_name = ? AND script_type = ? AND path = ?", a.DeviceID, a.CoinName, a.ScriptType, pathText).
		Take(&existing).Error
	switch {
	case err == nil:
		if existing.Address != a.Address {
			return kkerr.WithDetails(kkerr.ErrAddressMismatch, map[string]string{
				"coin_name":   a.CoinName,
				"script_type": a.ScriptType,
				"path":        pathText,
				"cached":      existing.Address,
				"received":    a.Address,
			})
		}
		updates := map[string]any{}
		if a.Pubkey != "" && a.Pubkey != existing.Pubkey {
			updates["pubkey"] = a.Pubkey
		} else {
			a.Pubkey = existing.Pubkey
		}
		if a.NetworkID != "" && existing.NetworkID == "" {
			updates["network_id"] = a.NetworkID
		} else {
			a.NetworkID = existing.NetworkID
		}
		if len(updates) > 0 {
			if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
				return storageError("save address", err)
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := addressRow{
			DeviceID:   a.DeviceID,
			CoinName:   a.CoinName,
			ScriptType: a.ScriptType,
			Path:       pathText,
			NetworkID:  a.NetworkID,
			Address:    a.Address,
			Pubkey:     a.Pubkey,
			CreatedAt:  s.timestamp(),
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return storageError("save address", err)
		}
	default:
		return storageError("save address", err)
	}

	if idx := s.index.Load(); idx != nil && idx.deviceID == a.DeviceID {
		idx.put(a)
	}
	return nil
}

// Addresses returns every cached entry of deviceID from the database, in
// insertion order.
func (s *Store) Addresses(ctx context.Context, deviceID string) ([]Address, error) {
	var rows []addressRow
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("id").Find(&rows).Error; err != nil {
		return nil, storageError("list addresses", err)
	}
	out := make([]Address, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAddress()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Xpubs returns the cached account xpubs of deviceID for a script type.
func (s *Store) Xpubs(ctx context.Context, deviceID, scriptType string) ([]Address, error) {
	all, err := s.Addresses(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	key := scriptType + catalog.XpubSuffix
	out := all[:0]
	for _, a := range all {
		if a.ScriptType == key {
			out = append(out, a)
		}
	}
	return out, nil
}

// HasCachedAddresses reports whether any entry exists for deviceID.
func (s *Store) HasCachedAddresses(ctx context.Context, deviceID string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&addressRow{}).Where("device_id = ?", deviceID).Count(&n).Error; err != nil {
		return false, storageError("count addresses", err)
	}
	return n > 0, nil
}

func validateAddress(a Address) error {
	var missing []string
	if a.DeviceID == "" {
		missing = append(missing, "device_id")
	}
	if a.CoinName == "" {
		missing = append(missing, "coin_name")
	}
	if a.ScriptType == "" {
		missing = append(missing, "script_type")
	}
	if a.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) == 0 {
		return nil
	}
	return kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"missing": strings.Join(missing, ",")})
}
