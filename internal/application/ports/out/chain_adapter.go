package out

import (
	"context"

	"depositwatch/internal/application/dto"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type DerivedAddress struct {
	Address          string
	AddressCanonical string
	Memo             *uint32
	DerivationIndex  valueobjects.DerivationIndex
}

// BlockSource is the read-only client surface for chains whose blocks can be
// enumerated by height (or slot).
type BlockSource interface {
	CurrentHeight(ctx context.Context) (int64, *apperrors.AppError)
	Block(ctx context.Context, height int64) (dto.ObservedBlock, *apperrors.AppError)
}

// AccountHistorySource is used by chains scanned through one shared account's
// transaction history instead of full blocks.
type AccountHistorySource interface {
	// CurrentCursor is the latest validated position; it seeds the cursor the
	// first time a chain is scanned.
	CurrentCursor(ctx context.Context) (int64, *apperrors.AppError)
	AccountTransactions(ctx context.Context, query dto.AccountHistoryQuery) (dto.AccountHistoryPage, *apperrors.AppError)
}

// ChainAdapter bundles everything chain-specific: address derivation (pure,
// never touches the network) and the observation client.
type ChainAdapter interface {
	Chain() valueobjects.Chain
	DeriveAddress(userID string) (DerivedAddress, *apperrors.AppError)
	BlockSource() (BlockSource, bool)
	AccountHistorySource() (AccountHistorySource, bool)
	SharedAddress() (string, bool)
}

type ChainRegistry interface {
	Adapter(chain valueobjects.Chain) (ChainAdapter, *apperrors.AppError)
	Chains() []valueobjects.Chain
}
