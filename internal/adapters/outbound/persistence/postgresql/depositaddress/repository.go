package depositaddress

import (
	"context"
	"database/sql"
	"time"

	postgresqlshared "depositwatch/internal/adapters/outbound/persistence/postgresql/shared"
	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/rs/zerolog"
)

const selectColumns = `user_id, chain, address, address_canonical, memo, derivation_index, created_at`

type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ portsout.DepositAddressRepository = (*Repository)(nil)

func NewRepository(db *sql.DB, logger zerolog.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) Find(ctx context.Context, userID string, chain valueobjects.Chain) (entities.DepositAddress, bool, *apperrors.AppError) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+selectColumns+`
FROM app.deposit_addresses
WHERE user_id = $1 AND chain = $2
`, userID, chain.String())

	address, err := scanDepositAddress(row)
	if postgresqlshared.IsNoRows(err) {
		return entities.DepositAddress{}, false, nil
	}
	if err != nil {
		return entities.DepositAddress{}, false, apperrors.NewInternal(
			"deposit_address_read_failed",
			"failed to read deposit address",
			map[string]any{"error": err.Error(), "user_id": userID, "chain": chain.String()},
		)
	}
	return address, true, nil
}

// GetOrCreate relies on the (user_id, chain) primary key: the losing side of
// a concurrent insert inserts nothing and reads the winner's row.
func (r *Repository) GetOrCreate(ctx context.Context, candidate entities.DepositAddress) (entities.DepositAddress, bool, *apperrors.AppError) {
	var memo sql.NullInt64
	if candidate.Memo != nil {
		memo = sql.NullInt64{Int64: int64(*candidate.Memo), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
INSERT INTO app.deposit_addresses (user_id, chain, address, address_canonical, memo, derivation_index, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, chain) DO NOTHING
`,
		candidate.UserID,
		candidate.Chain.String(),
		candidate.Address,
		candidate.AddressCanonical,
		memo,
		int64(candidate.DerivationIndex),
		candidate.CreatedAt.UTC(),
	)
	if err != nil {
		return entities.DepositAddress{}, false, apperrors.NewInternal(
			"deposit_address_persist_failed",
			"failed to persist deposit address",
			map[string]any{"error": err.Error(), "user_id": candidate.UserID, "chain": candidate.Chain.String()},
		)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return entities.DepositAddress{}, false, apperrors.NewInternal(
			"deposit_address_persist_failed",
			"failed to read deposit address insert result",
			map[string]any{"error": err.Error()},
		)
	}

	stored, found, appErr := r.Find(ctx, candidate.UserID, candidate.Chain)
	if appErr != nil {
		return entities.DepositAddress{}, false, appErr
	}
	if !found {
		return entities.DepositAddress{}, false, apperrors.NewInternal(
			"deposit_address_missing_after_upsert",
			"deposit address not found after upsert",
			map[string]any{"user_id": candidate.UserID, "chain": candidate.Chain.String()},
		)
	}

	created := affected == 1
	if created {
		r.logger.Info().
			Str("chain", stored.Chain.String()).
			Str("user_id", stored.UserID).
			Uint32("derivation_index", stored.DerivationIndex.Uint32()).
			Msg("deposit address registered")
	}
	return stored, created, nil
}

func (r *Repository) ListByChain(ctx context.Context, chain valueobjects.Chain) ([]entities.DepositAddress, *apperrors.AppError) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM app.deposit_addresses
WHERE chain = $1
ORDER BY created_at ASC, user_id ASC
`, chain.String())
	if err != nil {
		return nil, apperrors.NewInternal(
			"deposit_address_list_failed",
			"failed to list deposit addresses",
			map[string]any{"error": err.Error(), "chain": chain.String()},
		)
	}
	defer rows.Close()

	addresses := make([]entities.DepositAddress, 0)
	for rows.Next() {
		address, scanErr := scanDepositAddress(rows)
		if scanErr != nil {
			return nil, apperrors.NewInternal(
				"deposit_address_list_failed",
				"failed to scan deposit address",
				map[string]any{"error": scanErr.Error(), "chain": chain.String()},
			)
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(
			"deposit_address_list_failed",
			"failed to iterate deposit addresses",
			map[string]any{"error": err.Error(), "chain": chain.String()},
		)
	}

	return addresses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDepositAddress(row rowScanner) (entities.DepositAddress, error) {
	var (
		chain     string
		memo      sql.NullInt64
		index     int64
		createdAt time.Time
		address   entities.DepositAddress
	)
	if err := row.Scan(
		&address.UserID,
		&chain,
		&address.Address,
		&address.AddressCanonical,
		&memo,
		&index,
		&createdAt,
	); err != nil {
		return entities.DepositAddress{}, err
	}

	address.Chain = valueobjects.Chain(chain)
	address.DerivationIndex = valueobjects.DerivationIndex(uint32(index))
	address.CreatedAt = createdAt.UTC()
	if memo.Valid {
		value := uint32(memo.Int64)
		address.Memo = &value
	}
	return address, nil
}
