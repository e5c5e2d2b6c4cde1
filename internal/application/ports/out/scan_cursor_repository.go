package out

import (
	"context"

	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type ScanCursorRepository interface {
	Get(ctx context.Context, chain valueobjects.Chain) (entities.ScanCursor, bool, *apperrors.AppError)
	// Save persists cursor, never lowering a stored position.
	Save(ctx context.Context, cursor entities.ScanCursor) *apperrors.AppError
}
