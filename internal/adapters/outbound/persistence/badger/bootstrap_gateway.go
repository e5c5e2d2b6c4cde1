package badgerstore

import (
	"context"

	portsout "depositwatch/internal/application/ports/out"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

const schemaVersion = "1"

// BootstrapGateway gives the embedded store the same startup contract as the
// SQL driver. There is nothing to migrate; the schema marker is written once.
type BootstrapGateway struct {
	store  *Store
	logger zerolog.Logger
}

var _ portsout.PersistenceBootstrapGateway = (*BootstrapGateway)(nil)

func NewBootstrapGateway(store *Store, logger zerolog.Logger) *BootstrapGateway {
	return &BootstrapGateway{store: store, logger: logger}
}

func (g *BootstrapGateway) CheckReadiness(ctx context.Context) *apperrors.AppError {
	if err := ctx.Err(); err != nil {
		return apperrors.NewInternal("DB_CONNECT_FAILED", "readiness context canceled", nil)
	}
	if g.store == nil || g.store.db.IsClosed() {
		return apperrors.NewInternal("DB_CONNECT_FAILED", "badger store is not open", nil)
	}
	return nil
}

func (g *BootstrapGateway) RunMigrations(ctx context.Context) *apperrors.AppError {
	if err := ctx.Err(); err != nil {
		return apperrors.NewInternal("DB_MIGRATION_CONTEXT_CANCELED", "migration context canceled", nil)
	}

	written := false
	err := g.store.update(func(txn *badger.Txn) error {
		written = false
		_, getErr := txn.Get([]byte(keySchemaVersion))
		if getErr == nil {
			return nil
		}
		if getErr != badger.ErrKeyNotFound {
			return getErr
		}
		written = true
		return txn.Set([]byte(keySchemaVersion), []byte(schemaVersion))
	})
	if err != nil {
		return storageError("DB_MIGRATION_APPLY_FAILED", "failed to write schema marker", err, nil)
	}

	if written {
		g.logger.Info().Str("schema_version", schemaVersion).Msg("badger store initialized")
	} else {
		g.logger.Info().Msg("badger store up to date")
	}
	return nil
}
