package entities

import (
	"time"

	valueobjects "depositwatch/internal/domain/value_objects"

	"github.com/shopspring/decimal"
)

// Deposit is one observed incoming transfer. (Chain, TxRef) is unique; TxRef is
// the native transaction hash, suffixed with ":<logIndex>" for token transfer
// events so that several transfers inside one transaction stay distinct.
type Deposit struct {
	ID          string
	UserID      string
	Chain       valueobjects.Chain
	Token       string
	Amount      decimal.Decimal
	TxRef       string
	Address     string
	Memo        *uint32
	BlockHeight int64
	ObservedAt  time.Time
}
