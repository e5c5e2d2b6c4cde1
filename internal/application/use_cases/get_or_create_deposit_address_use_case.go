package use_cases

import (
	"context"

	"depositwatch/internal/application/dto"
	portsin "depositwatch/internal/application/ports/in"
	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type getOrCreateDepositAddressUseCase struct {
	registry   portsout.ChainRegistry
	repository portsout.DepositAddressRepository
	clock      Clock
}

func NewGetOrCreateDepositAddressUseCase(
	registry portsout.ChainRegistry,
	repository portsout.DepositAddressRepository,
	clock Clock,
) portsin.GetOrCreateDepositAddressUseCase {
	if clock == nil {
		clock = NewSystemClock()
	}

	return &getOrCreateDepositAddressUseCase{
		registry:   registry,
		repository: repository,
		clock:      clock,
	}
}

func (u *getOrCreateDepositAddressUseCase) Execute(
	ctx context.Context,
	command dto.GetOrCreateDepositAddressCommand,
) (dto.DepositAddressOutput, *apperrors.AppError) {
	if u.registry == nil {
		return dto.DepositAddressOutput{}, apperrors.NewInternal(
			"chain_registry_missing",
			"chain registry is required",
			nil,
		)
	}
	if u.repository == nil {
		return dto.DepositAddressOutput{}, apperrors.NewInternal(
			"deposit_address_repository_missing",
			"deposit address repository is required",
			nil,
		)
	}

	userID, appErr := valueobjects.NormalizeUserID(command.UserID)
	if appErr != nil {
		return dto.DepositAddressOutput{}, appErr
	}
	chain, appErr := valueobjects.ParseChain(command.Chain)
	if appErr != nil {
		return dto.DepositAddressOutput{}, appErr
	}
	adapter, appErr := u.registry.Adapter(chain)
	if appErr != nil {
		return dto.DepositAddressOutput{}, appErr
	}

	existing, found, appErr := u.repository.Find(ctx, userID, chain)
	if appErr != nil {
		return dto.DepositAddressOutput{}, appErr
	}
	if found {
		return dto.DepositAddressOutput{Resource: toDepositAddressResource(existing)}, nil
	}
	if !command.CreateIfMissing {
		return dto.DepositAddressOutput{}, apperrors.NewNotFound(
			"deposit_address_not_found",
			"deposit address not found",
			map[string]any{"user_id": userID, "chain": chain.String()},
		)
	}

	derived, appErr := adapter.DeriveAddress(userID)
	if appErr != nil {
		return dto.DepositAddressOutput{}, appErr
	}

	candidate := entities.DepositAddress{
		UserID:           userID,
		Chain:            chain,
		Address:          derived.Address,
		AddressCanonical: derived.AddressCanonical,
		Memo:             derived.Memo,
		DerivationIndex:  derived.DerivationIndex,
		CreatedAt:        u.clock.NowUTC(),
	}

	stored, created, appErr := u.repository.GetOrCreate(ctx, candidate)
	if appErr != nil {
		return dto.DepositAddressOutput{}, appErr
	}
	// A concurrent winner derived from the same inputs, so anything else means
	// the master secret or derivation scheme changed under stored rows.
	if stored.AddressCanonical != candidate.AddressCanonical || !sameMemo(stored.Memo, candidate.Memo) {
		return dto.DepositAddressOutput{}, apperrors.NewInternal(
			"deposit_address_derivation_mismatch",
			"stored deposit address does not match derived address",
			map[string]any{"user_id": userID, "chain": chain.String()},
		)
	}

	return dto.DepositAddressOutput{
		Resource: toDepositAddressResource(stored),
		Created:  created,
	}, nil
}
