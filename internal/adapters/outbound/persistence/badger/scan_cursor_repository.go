package badgerstore

import (
	"context"
	"time"

	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/dgraph-io/badger/v4"
)

type cursorRecord struct {
	Position  int64     `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ScanCursorRepository struct {
	store *Store
}

var _ portsout.ScanCursorRepository = (*ScanCursorRepository)(nil)

func NewScanCursorRepository(store *Store) *ScanCursorRepository {
	return &ScanCursorRepository{store: store}
}

func (r *ScanCursorRepository) Get(_ context.Context, chain valueobjects.Chain) (entities.ScanCursor, bool, *apperrors.AppError) {
	var (
		record cursorRecord
		found  bool
	)
	err := r.store.db.View(func(txn *badger.Txn) error {
		var getErr error
		found, getErr = getJSON(txn, cursorKey(chain), &record)
		return getErr
	})
	if err != nil {
		return entities.ScanCursor{}, false, storageError(
			"scan_cursor_read_failed",
			"failed to read scan cursor",
			err,
			map[string]any{"chain": chain.String()},
		)
	}
	if !found {
		return entities.ScanCursor{}, false, nil
	}
	return entities.ScanCursor{Chain: chain, Position: record.Position, UpdatedAt: record.UpdatedAt.UTC()}, true, nil
}

func (r *ScanCursorRepository) Save(_ context.Context, cursor entities.ScanCursor) *apperrors.AppError {
	key := cursorKey(cursor.Chain)
	err := r.store.update(func(txn *badger.Txn) error {
		var existing cursorRecord
		found, getErr := getJSON(txn, key, &existing)
		if getErr != nil {
			return getErr
		}
		if found && existing.Position >= cursor.Position {
			return nil
		}
		return setJSON(txn, key, cursorRecord{Position: cursor.Position, UpdatedAt: cursor.UpdatedAt.UTC()})
	})
	if err != nil {
		return storageError(
			"scan_cursor_persist_failed",
			"failed to persist scan cursor",
			err,
			map[string]any{"chain": cursor.Chain.String(), "position": cursor.Position},
		)
	}
	return nil
}
