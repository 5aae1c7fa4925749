// Package cache persists device features, derivation paths, addresses and
// balances in SQLite, and keeps an in-memory address index for the device
// that was loaded last.
//
// Address lookups never touch the database: they read the index, which is
// swapped atomically on load and updated in place on save, so readers see
// either the old or the new entry and never block on a writer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

const (
	// DefaultFreshness is how long balances are trusted before a refresh is due.
	DefaultFreshness = time.Hour

	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0o750
)

// Option configures a Store.
type Option func(*Store)

// WithFreshness sets the balance freshness window.
func WithFreshness(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.freshness = d
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics records cache hits and misses on m instead of metrics.Global.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is the device cache.
type Store struct {
	db        *gorm.DB
	freshness time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics

	// writeMu serializes writes so the database and the index never
	// disagree about a key.
	writeMu  sync.Mutex
	index    atomic.Pointer[addressIndex]
	features atomic.Pointer[device.Features]
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, storageError("open", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, storageError("open", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageError("open", err)
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&featuresRow{}, &pathRow{}, &addressRow{}, &balanceRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, storageError("migrate", err)
	}

	s := &Store{
		db:        db,
		freshness: DefaultFreshness,
		now:       time.Now,
		metrics:   metrics.Global,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageError("close", err)
	}
	if err := sqlDB.Close(); err != nil {
		return storageError("close", err)
	}
	return nil
}

// SaveFeatures stores the feature snapshot of deviceID and makes it the
// current features.
func (s *Store) SaveFeatures(ctx context.Context, deviceID string, f *device.Features) error {
	blob, err := json.Marshal(f)
	if err != nil {
		return storageError("save features", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	row := featuresRow{DeviceID: deviceID, Blob: blob, UpdatedAt: s.timestamp()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return storageError("save features", err)
	}

	snapshot := *f
	s.features.Store(&snapshot)
	return nil
}

// CachedFeatures returns the features of the most recently saved or loaded
// device.
func (s *Store) CachedFeatures() (*device.Features, bool) {
	f := s.features.Load()
	if f == nil {
		return nil, false
	}
	out := *f
	return &out, true
}

// LoadDevice hydrates the address index from the database and makes
// deviceID the current device. It returns the number of cached entries; a
// device with no rows is still loaded, with an empty index.
func (s *Store) LoadDevice(ctx context.Context, deviceID string) (int, error) {
	var rows []addressRow
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Find(&rows).Error; err != nil {
		return 0, storageError("load device", err)
	}

	idx := newAddressIndex(deviceID)
	for _, r := range rows {
		a, err := r.toAddress()
		if err != nil {
			return 0, err
		}
		idx.put(a)
	}

	var fr featuresRow
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Take(&fr).Error
	switch {
	case err == nil:
		var f device.Features
		if err := json.Unmarshal(fr.Blob, &f); err != nil {
			return 0, storageError("load features", err)
		}
		s.features.Store(&f)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return 0, storageError("load features", err)
	}

	s.index.Store(idx)
	return len(rows), nil
}

// LoadedDevice returns the identity of the current device, or "".
func (s *Store) LoadedDevice() string {
	if idx := s.index.Load(); idx != nil {
		return idx.deviceID
	}
	return ""
}

// Devices lists every device with cached features, most recently seen
// first.
func (s *Store) Devices(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&featuresRow{}).
		Order("updated_at DESC").Order("device_id").
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, storageError("list devices", err)
	}
	return ids, nil
}

// timestamp returns the current time in UTC without a monotonic reading so
// stored values compare correctly.
func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func storageError(op string, err error) error {
	return kkerr.WithDetails(kkerr.WithCause(kkerr.ErrStorage, err), map[string]string{"operation": op})
}
