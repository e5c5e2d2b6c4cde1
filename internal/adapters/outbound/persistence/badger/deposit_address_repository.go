package badgerstore

import (
	"context"
	"sort"
	"time"

	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

type addressRecord struct {
	UserID           string    `json:"user_id"`
	Chain            string    `json:"chain"`
	Address          string    `json:"address"`
	AddressCanonical string    `json:"address_canonical"`
	Memo             *uint32   `json:"memo,omitempty"`
	DerivationIndex  uint32    `json:"derivation_index"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r addressRecord) entity() entities.DepositAddress {
	return entities.DepositAddress{
		UserID:           r.UserID,
		Chain:            valueobjects.Chain(r.Chain),
		Address:          r.Address,
		AddressCanonical: r.AddressCanonical,
		Memo:             r.Memo,
		DerivationIndex:  valueobjects.DerivationIndex(r.DerivationIndex),
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

type DepositAddressRepository struct {
	store  *Store
	logger zerolog.Logger
}

var _ portsout.DepositAddressRepository = (*DepositAddressRepository)(nil)

func NewDepositAddressRepository(store *Store, logger zerolog.Logger) *DepositAddressRepository {
	return &DepositAddressRepository{store: store, logger: logger}
}

func (r *DepositAddressRepository) Find(_ context.Context, userID string, chain valueobjects.Chain) (entities.DepositAddress, bool, *apperrors.AppError) {
	var (
		record addressRecord
		found  bool
	)
	err := r.store.db.View(func(txn *badger.Txn) error {
		var getErr error
		found, getErr = getJSON(txn, addressKey(chain, userID), &record)
		return getErr
	})
	if err != nil {
		return entities.DepositAddress{}, false, storageError(
			"deposit_address_read_failed",
			"failed to read deposit address",
			err,
			map[string]any{"user_id": userID, "chain": chain.String()},
		)
	}
	if !found {
		return entities.DepositAddress{}, false, nil
	}
	return record.entity(), true, nil
}

func (r *DepositAddressRepository) GetOrCreate(_ context.Context, candidate entities.DepositAddress) (entities.DepositAddress, bool, *apperrors.AppError) {
	key := addressKey(candidate.Chain, candidate.UserID)

	var (
		stored  addressRecord
		created bool
	)
	err := r.store.update(func(txn *badger.Txn) error {
		created = false
		found, getErr := getJSON(txn, key, &stored)
		if getErr != nil || found {
			return getErr
		}

		stored = addressRecord{
			UserID:           candidate.UserID,
			Chain:            candidate.Chain.String(),
			Address:          candidate.Address,
			AddressCanonical: candidate.AddressCanonical,
			Memo:             candidate.Memo,
			DerivationIndex:  candidate.DerivationIndex.Uint32(),
			CreatedAt:        candidate.CreatedAt.UTC(),
		}
		created = true
		return setJSON(txn, key, stored)
	})
	if err != nil {
		return entities.DepositAddress{}, false, storageError(
			"deposit_address_persist_failed",
			"failed to persist deposit address",
			err,
			map[string]any{"user_id": candidate.UserID, "chain": candidate.Chain.String()},
		)
	}

	if created {
		r.logger.Info().
			Str("chain", stored.Chain).
			Str("user_id", stored.UserID).
			Uint32("derivation_index", stored.DerivationIndex).
			Msg("deposit address registered")
	}
	return stored.entity(), created, nil
}

func (r *DepositAddressRepository) ListByChain(_ context.Context, chain valueobjects.Chain) ([]entities.DepositAddress, *apperrors.AppError) {
	records := make([]addressRecord, 0)
	err := r.store.db.View(func(txn *badger.Txn) error {
		return forEachJSON(txn, addressChainPrefix(chain), func(val []byte) error {
			var record addressRecord
			if err := decodeJSON(val, &record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, storageError(
			"deposit_address_list_failed",
			"failed to list deposit addresses",
			err,
			map[string]any{"chain": chain.String()},
		)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].UserID < records[j].UserID
	})

	addresses := make([]entities.DepositAddress, 0, len(records))
	for _, record := range records {
		addresses = append(addresses, record.entity())
	}
	return addresses, nil
}
