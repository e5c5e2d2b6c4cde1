package dto

import (
	"math/big"
	"time"
)

// ObservedTransfer is one incoming value movement as reported by a chain
// client, before it is matched against the address directory.
type ObservedTransfer struct {
	TxRef       string
	To          string
	Memo        *uint32
	Token       string
	AmountMinor *big.Int
	Decimals    int32
	Height      int64
}

type ObservedBlock struct {
	Height    int64
	Timestamp time.Time
	Transfers []ObservedTransfer
}

type AccountHistoryQuery struct {
	Address     string
	SinceCursor int64
	Marker      string
}

// AccountHistoryPage carries one page of account-scoped history. UpperBound is
// the last position the query covered; it becomes the cursor once every page
// (Marker == "") has been processed.
type AccountHistoryPage struct {
	Transfers  []ObservedTransfer
	Marker     string
	UpperBound int64
}
