package scancursor

import (
	"context"
	"database/sql"
	"time"

	postgresqlshared "depositwatch/internal/adapters/outbound/persistence/postgresql/shared"
	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type Repository struct {
	db *sql.DB
}

var _ portsout.ScanCursorRepository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, chain valueobjects.Chain) (entities.ScanCursor, bool, *apperrors.AppError) {
	var (
		position  int64
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
SELECT position, updated_at
FROM app.scan_cursors
WHERE chain = $1
`, chain.String()).Scan(&position, &updatedAt)
	if postgresqlshared.IsNoRows(err) {
		return entities.ScanCursor{}, false, nil
	}
	if err != nil {
		return entities.ScanCursor{}, false, apperrors.NewInternal(
			"scan_cursor_read_failed",
			"failed to read scan cursor",
			map[string]any{"error": err.Error(), "chain": chain.String()},
		)
	}

	return entities.ScanCursor{Chain: chain, Position: position, UpdatedAt: updatedAt.UTC()}, true, nil
}

// Save never moves a stored cursor backwards.
func (r *Repository) Save(ctx context.Context, cursor entities.ScanCursor) *apperrors.AppError {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO app.scan_cursors (chain, position, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (chain) DO UPDATE
SET position = GREATEST(app.scan_cursors.position, EXCLUDED.position),
    updated_at = CASE
      WHEN EXCLUDED.position > app.scan_cursors.position THEN EXCLUDED.updated_at
      ELSE app.scan_cursors.updated_at
    END
`, cursor.Chain.String(), cursor.Position, cursor.UpdatedAt.UTC())
	if err != nil {
		return apperrors.NewInternal(
			"scan_cursor_persist_failed",
			"failed to persist scan cursor",
			map[string]any{"error": err.Error(), "chain": cursor.Chain.String(), "position": cursor.Position},
		)
	}
	return nil
}
