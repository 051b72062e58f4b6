package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts an integer amount in token base units to a decimal
// amount with the given number of decimals
func FromBaseUnits(x *big.Int, decimals int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, int32(-decimals))
}
