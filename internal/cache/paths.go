package cache

import (
	"context"
	"errors"
	"slices"

	"gorm.io/gorm"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

func pathToRow(p catalog.Path) pathRow {
	return pathRow{
		Note:                 p.Note,
		ScriptType:           p.ScriptType,
		PathType:             p.PathType,
		Curve:                p.Curve,
		AddressNList:         slices.Clone(p.AddressNList),
		AddressNListMaster:   slices.Clone(p.AddressNListMaster),
		Networks:             slices.Clone(p.Networks),
		AvailableScriptTypes: slices.Clone(p.AvailableScriptTypes),
	}
}

func (r pathRow) toPath() catalog.Path {
	return catalog.Path{
		Note:                 r.Note,
		ScriptType:           r.ScriptType,
		PathType:             r.PathType,
		Curve:                r.Curve,
		AddressNList:         r.AddressNList,
		AddressNListMaster:   r.AddressNListMaster,
		Networks:             r.Networks,
		AvailableScriptTypes: r.AvailableScriptTypes,
	}
}

// Paths returns the stored derivation paths in insertion order.
func (s *Store) Paths(ctx context.Context) ([]catalog.Path, error) {
	var rows []pathRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, storageError("list paths", err)
	}
	out := make([]catalog.Path, len(rows))
	for i, r := range rows {
		out[i] = r.toPath()
	}
	return out, nil
}

// AddPath inserts p unless a path with the same note exists. It reports
// whether a row was inserted.
func (s *Store) AddPath(ctx context.Context, p catalog.Path) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.pathExists(ctx, p.Note)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	row := pathToRow(p)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return false, storageError("add path", err)
	}
	return true, nil
}

// UpdatePath replaces the path with the same note.
func (s *Store) UpdatePath(ctx context.Context, p catalog.Path) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing pathRow
	err := s.db.WithContext(ctx).Where("note = ?", p.Note).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pathNotFound(p.Note)
	}
	if err != nil {
		return storageError("update path", err)
	}

	row := pathToRow(p)
	row.ID = existing.ID
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return storageError("update path", err)
	}
	return nil
}

// DeletePath removes the path with the given note.
func (s *Store) DeletePath(ctx context.Context, note string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res := s.db.WithContext(ctx).Where("note = ?", note).Delete(&pathRow{})
	if res.Error != nil {
		return storageError("delete path", res.Error)
	}
	if res.RowsAffected == 0 {
		return pathNotFound(note)
	}
	return nil
}

func (s *Store) pathExists(ctx context.Context, note string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&pathRow{}).Where("note = ?", note).Count(&n).Error; err != nil {
		return false, storageError("find path", err)
	}
	return n > 0, nil
}

func pathNotFound(note string) error {
	return kkerr.WithDetails(kkerr.ErrNotFound, map[string]string{"path": note})
}
