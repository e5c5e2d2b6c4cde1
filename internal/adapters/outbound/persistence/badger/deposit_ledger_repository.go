package badgerstore

import (
	"context"
	"time"

	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
)

type depositRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Chain       string          `json:"chain"`
	Token       string          `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	TxRef       string          `json:"tx_ref"`
	Address     string          `json:"address"`
	Memo        *uint32         `json:"memo,omitempty"`
	BlockHeight int64           `json:"block_height"`
	ObservedAt  time.Time       `json:"observed_at"`
}

type DepositLedgerRepository struct {
	store *Store
}

var _ portsout.DepositLedgerRepository = (*DepositLedgerRepository)(nil)

func NewDepositLedgerRepository(store *Store) *DepositLedgerRepository {
	return &DepositLedgerRepository{store: store}
}

// Record writes the (chain, tx_ref) marker and the per-user entry in one
// transaction; the marker makes a repeated transfer a no-op.
func (r *DepositLedgerRepository) Record(_ context.Context, deposit entities.Deposit) (bool, *apperrors.AppError) {
	seq, err := r.store.sequence.Next()
	if err != nil {
		return false, storageError(
			"deposit_record_failed",
			"failed to allocate deposit sequence",
			err,
			map[string]any{"chain": deposit.Chain.String(), "tx_ref": deposit.TxRef},
		)
	}

	refKey := depositRefKey(deposit.Chain, deposit.TxRef)
	record := depositRecord{
		ID:          deposit.ID,
		UserID:      deposit.UserID,
		Chain:       deposit.Chain.String(),
		Token:       deposit.Token,
		Amount:      deposit.Amount,
		TxRef:       deposit.TxRef,
		Address:     deposit.Address,
		Memo:        deposit.Memo,
		BlockHeight: deposit.BlockHeight,
		ObservedAt:  deposit.ObservedAt.UTC(),
	}

	inserted := false
	err = r.store.update(func(txn *badger.Txn) error {
		inserted = false
		_, getErr := txn.Get(refKey)
		if getErr == nil {
			return nil
		}
		if getErr != badger.ErrKeyNotFound {
			return getErr
		}

		if setErr := txn.Set(refKey, []byte(deposit.ID)); setErr != nil {
			return setErr
		}
		if setErr := setJSON(txn, depositUserKey(deposit.UserID, seq), record); setErr != nil {
			return setErr
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, storageError(
			"deposit_record_failed",
			"failed to record deposit",
			err,
			map[string]any{"chain": deposit.Chain.String(), "tx_ref": deposit.TxRef},
		)
	}
	return inserted, nil
}

func (r *DepositLedgerRepository) ListByUser(_ context.Context, userID string, limit int) ([]entities.Deposit, *apperrors.AppError) {
	deposits := make([]entities.Deposit, 0)
	err := r.store.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		prefix := depositUserPrefix(userID)
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(deposits) >= limit {
				return nil
			}
			var record depositRecord
			if err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &record)
			}); err != nil {
				return err
			}
			deposits = append(deposits, entities.Deposit{
				ID:          record.ID,
				UserID:      record.UserID,
				Chain:       valueobjects.Chain(record.Chain),
				Token:       record.Token,
				Amount:      record.Amount,
				TxRef:       record.TxRef,
				Address:     record.Address,
				Memo:        record.Memo,
				BlockHeight: record.BlockHeight,
				ObservedAt:  record.ObservedAt.UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, storageError(
			"deposit_list_failed",
			"failed to list deposits",
			err,
			map[string]any{"user_id": userID},
		)
	}
	return deposits, nil
}
