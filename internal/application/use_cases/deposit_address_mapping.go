package use_cases

import (
	"depositwatch/internal/application/dto"
	"depositwatch/internal/domain/entities"
)

func toDepositAddressResource(address entities.DepositAddress) dto.DepositAddressResource {
	return dto.DepositAddressResource{
		UserID:          address.UserID,
		Chain:           address.Chain.String(),
		Address:         address.Address,
		Memo:            address.Memo,
		DepositURI:      address.DepositURI(),
		DerivationIndex: address.DerivationIndex.Uint32(),
		CreatedAt:       address.CreatedAt,
	}
}

func toDepositResource(deposit entities.Deposit) dto.DepositResource {
	return dto.DepositResource{
		ID:          deposit.ID,
		UserID:      deposit.UserID,
		Chain:       deposit.Chain.String(),
		Token:       deposit.Token,
		Amount:      deposit.Amount.String(),
		TxRef:       deposit.TxRef,
		Address:     deposit.Address,
		Memo:        deposit.Memo,
		BlockHeight: deposit.BlockHeight,
		ObservedAt:  deposit.ObservedAt,
	}
}

func sameMemo(a *uint32, b *uint32) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
