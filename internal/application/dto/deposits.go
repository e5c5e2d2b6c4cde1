package dto

import "time"

const (
	DefaultDepositHistoryLimit = 50
	MaxDepositHistoryLimit     = 500
)

type ListUserDepositsQuery struct {
	UserID string
	Limit  int
}

type DepositResource struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Chain       string    `json:"chain"`
	Token       string    `json:"token"`
	Amount      string    `json:"amount"`
	TxRef       string    `json:"tx_ref"`
	Address     string    `json:"address"`
	Memo        *uint32   `json:"memo,omitempty"`
	BlockHeight int64     `json:"block_height"`
	ObservedAt  time.Time `json:"observed_at"`
}

type ListUserDepositsOutput struct {
	UserID   string            `json:"user_id"`
	Deposits []DepositResource `json:"deposits"`
}
