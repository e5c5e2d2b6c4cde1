package valueobjects

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountFromMinor converts a base-unit integer into a decimal amount with the
// given number of fractional digits.
func AmountFromMinor(minor *big.Int, decimals int32) decimal.Decimal {
	if minor == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(minor, -decimals)
}
