package out

import (
	"context"

	"depositwatch/internal/domain/entities"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type DepositLedgerRepository interface {
	// Record appends deposit unless (Chain, TxRef) is already present, in which
	// case it is a no-op and inserted is false.
	Record(ctx context.Context, deposit entities.Deposit) (inserted bool, appErr *apperrors.AppError)
	ListByUser(ctx context.Context, userID string, limit int) ([]entities.Deposit, *apperrors.AppError)
}
