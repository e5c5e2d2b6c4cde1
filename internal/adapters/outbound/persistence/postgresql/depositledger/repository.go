package depositledger

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
	"github.com/shopspring/decimal"
)

type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ portsout.DepositLedgerRepository = (*Repository)(nil)

func NewRepository(db *sql.DB, logger zerolog.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) Record(ctx context.Context, deposit entities.Deposit) (bool, *apperrors.AppError) {
	var memo sql.NullInt64
	if deposit.Memo != nil {
		memo = sql.NullInt64{Int64: int64(*deposit.Memo), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
INSERT INTO app.deposits (id, user_id, chain, token, amount, tx_ref, address, memo, block_height, observed_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
ON CONFLICT (chain, tx_ref) DO NOTHING
`,
		deposit.ID,
		deposit.UserID,
		deposit.Chain.String(),
		deposit.Token,
		deposit.Amount.String(),
		deposit.TxRef,
		deposit.Address,
		memo,
		deposit.BlockHeight,
		deposit.ObservedAt.UTC(),
	)
	if err != nil {
		code := "deposit_record_failed"
		if postgresqlshared.IsUniqueViolation(err) {
			// Only the id can still collide once (chain, tx_ref) is absorbed.
			code = "deposit_id_conflict"
		}
		return false, apperrors.NewInternal(
			code,
			"failed to record deposit",
			map[string]any{"error": err.Error(), "chain": deposit.Chain.String(), "tx_ref": deposit.TxRef},
		)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternal(
			"deposit_record_failed",
			"failed to read deposit insert result",
			map[string]any{"error": err.Error()},
		)
	}
	return affected == 1, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]entities.Deposit, *apperrors.AppError) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, chain, token, amount::text, tx_ref, address, memo, block_height, observed_at
FROM app.deposits
WHERE user_id = $1
ORDER BY seq ASC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, apperrors.NewInternal(
			"deposit_list_failed",
			"failed to list deposits",
			map[string]any{"error": err.Error(), "user_id": userID},
		)
	}
	defer rows.Close()

	deposits := make([]entities.Deposit, 0)
	for rows.Next() {
		var (
			deposit    entities.Deposit
			chain      string
			amount     string
			memo       sql.NullInt64
			observedAt time.Time
		)
		if err := rows.Scan(
			&deposit.ID,
			&deposit.UserID,
			&chain,
			&deposit.Token,
			&amount,
			&deposit.TxRef,
			&deposit.Address,
			&memo,
			&deposit.BlockHeight,
			&observedAt,
		); err != nil {
			return nil, apperrors.NewInternal(
				"deposit_list_failed",
				"failed to scan deposit",
				map[string]any{"error": err.Error(), "user_id": userID},
			)
		}

		parsed, parseErr := decimal.NewFromString(amount)
		if parseErr != nil {
			return nil, apperrors.NewInternal(
				"deposit_amount_invalid",
				"stored deposit amount is invalid",
				map[string]any{"error": parseErr.Error(), "deposit_id": deposit.ID},
			)
		}
		deposit.Chain = valueobjects.Chain(chain)
		deposit.Amount = parsed
		deposit.ObservedAt = observedAt.UTC()
		if memo.Valid {
			value := uint32(memo.Int64)
			deposit.Memo = &value
		}
		deposits = append(deposits, deposit)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(
			"deposit_list_failed",
			"failed to iterate deposits",
			map[string]any{"error": err.Error(), "user_id": userID},
		)
	}

	return deposits, nil
}
