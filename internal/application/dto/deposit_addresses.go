package dto

import "time"

type GetOrCreateDepositAddressCommand struct {
	UserID          string
	Chain           string
	CreateIfMissing bool
}

type DepositAddressResource struct {
	UserID          string    `json:"user_id"`
	Chain           string    `json:"chain"`
	Address         string    `json:"address"`
	Memo            *uint32   `json:"memo,omitempty"`
	DepositURI      string    `json:"deposit_uri"`
	DerivationIndex uint32    `json:"derivation_index"`
	CreatedAt       time.Time `json:"created_at"`
}

type DepositAddressOutput struct {
	Resource DepositAddressResource
	Created  bool
}
