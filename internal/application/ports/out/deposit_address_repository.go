package out

import (
	"context"

	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type DepositAddressRepository interface {
	Find(ctx context.Context, userID string, chain valueobjects.Chain) (entities.DepositAddress, bool, *apperrors.AppError)
	// GetOrCreate stores candidate unless a row for (UserID, Chain) exists and
	// returns whichever row is stored afterwards. created is true only for the
	// caller whose insert won.
	GetOrCreate(ctx context.Context, candidate entities.DepositAddress) (stored entities.DepositAddress, created bool, appErr *apperrors.AppError)
	ListByChain(ctx context.Context, chain valueobjects.Chain) ([]entities.DepositAddress, *apperrors.AppError)
}
