package in

import (
	"context"

	"depositwatch/internal/application/dto"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type ScanChainDepositsUseCase interface {
	Execute(ctx context.Context, command dto.ScanChainDepositsCommand) (dto.ScanChainDepositsOutput, *apperrors.AppError)
}
