package use_cases

import (
	"context"

	"depositwatch/internal/application/dto"
	portsin "depositwatch/internal/application/ports/in"
	portsout "depositwatch/internal/application/ports/out"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type listUserDepositsUseCase struct {
	ledger portsout.DepositLedgerRepository
}

func NewListUserDepositsUseCase(ledger portsout.DepositLedgerRepository) portsin.ListUserDepositsUseCase {
	return &listUserDepositsUseCase{ledger: ledger}
}

func (u *listUserDepositsUseCase) Execute(
	ctx context.Context,
	query dto.ListUserDepositsQuery,
) (dto.ListUserDepositsOutput, *apperrors.AppError) {
	if u.ledger == nil {
		return dto.ListUserDepositsOutput{}, apperrors.NewInternal(
			"deposit_ledger_repository_missing",
			"deposit ledger repository is required",
			nil,
		)
	}

	userID, appErr := valueobjects.NormalizeUserID(query.UserID)
	if appErr != nil {
		return dto.ListUserDepositsOutput{}, appErr
	}

	limit := query.Limit
	if limit == 0 {
		limit = dto.DefaultDepositHistoryLimit
	}
	if limit < 0 || limit > dto.MaxDepositHistoryLimit {
		return dto.ListUserDepositsOutput{}, apperrors.NewValidation(
			"invalid_request",
			"limit is out of range",
			map[string]any{"field": "limit", "max": dto.MaxDepositHistoryLimit},
		)
	}

	deposits, appErr := u.ledger.ListByUser(ctx, userID, limit)
	if appErr != nil {
		return dto.ListUserDepositsOutput{}, appErr
	}

	output := dto.ListUserDepositsOutput{
		UserID:   userID,
		Deposits: make([]dto.DepositResource, 0, len(deposits)),
	}
	for _, deposit := range deposits {
		output.Deposits = append(output.Deposits, toDepositResource(deposit))
	}

	return output, nil
}
