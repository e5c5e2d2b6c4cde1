package in

import (
	"context"

	"depositwatch/internal/application/dto"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type ListUserDepositsUseCase interface {
	Execute(ctx context.Context, query dto.ListUserDepositsQuery) (dto.ListUserDepositsOutput, *apperrors.AppError)
}
