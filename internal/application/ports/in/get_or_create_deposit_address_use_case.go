package in

import (
	"context"

	"depositwatch/internal/application/dto"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type GetOrCreateDepositAddressUseCase interface {
	Execute(ctx context.Context, command dto.GetOrCreateDepositAddressCommand) (dto.DepositAddressOutput, *apperrors.AppError)
}
