package entities

import (
	"strconv"
	"time"

	valueobjects "depositwatch/internal/domain/value_objects"
)

// DepositAddress is immutable once stored: the same (user, chain) always
// derives the same value, so it is never rotated.
type DepositAddress struct {
	UserID           string
	Chain            valueobjects.Chain
	Address          string
	AddressCanonical string
	Memo             *uint32
	DerivationIndex  valueobjects.DerivationIndex
	CreatedAt        time.Time
}

// DepositURI is the string shown to users. Memo chains append the memo the
// same way the bot has always rendered it.
func (a DepositAddress) DepositURI() string {
	if a.Memo == nil {
		return a.Address
	}
	return a.Address + "?memo=" + strconv.FormatUint(uint64(*a.Memo), 10)
}

// MatchKey is the value a scanner compares against observed transfers:
// the memo for shared-address chains, otherwise the canonical address.
func (a DepositAddress) MatchKey() string {
	if a.Memo != nil {
		return strconv.FormatUint(uint64(*a.Memo), 10)
	}
	return a.AddressCanonical
}
