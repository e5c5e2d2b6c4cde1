package in

import (
	"context"

	"depositwatch/internal/application/dto"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type GetHealthUseCase interface {
	Execute(ctx context.Context, command dto.GetHealthCommand) (dto.HealthOutput, *apperrors.AppError)
}
