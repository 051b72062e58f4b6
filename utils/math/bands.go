package math

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/types"
)

// sqrtPrecision is the mantissa size, in bits, used for square roots
const sqrtPrecision = 256

// sqrtDigits is the number of fractional digits kept from a square root
const sqrtDigits = 36

// Reverse swaps a band pair
func Reverse(b [2]int) [2]int {
	return [2]int{b[1], b[0]}
}

// DisplayBands converts a market band pair to display order. The distinct
// input and output types keep the swap from being applied twice.
func DisplayBands(raw types.RawBands) types.BandRange {
	return types.BandRange(Reverse(raw))
}

// IndexedBand is a band balance together with its index
type IndexedBand struct {
	N int
	types.BandBalance
}

// SortBands orders a bands map by ascending numeric band index
func SortBands(balances types.BandsBalances) []IndexedBand {
	out := make([]IndexedBand, 0, len(balances))
	for n, b := range balances {
		out = append(out, IndexedBand{N: n, BandBalance: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].N < out[j].N })
	return out
}

// FilterEmptyBands drops bands with zero borrowed and zero collateral.
// Used for market-wide summaries only; user summaries keep every band.
func FilterEmptyBands(bands []IndexedBand) []IndexedBand {
	out := make([]IndexedBand, 0, len(bands))
	for _, b := range bands {
		if b.IsEmpty() {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Sqrt returns the square root of d computed with a 256-bit mantissa
func Sqrt(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("square root of negative value %s", d)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	f, ok := new(big.Float).SetPrec(sqrtPrecision).SetString(d.String())
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid decimal %s", d)
	}
	f.Sqrt(f)
	out, err := decimal.NewFromString(f.Text('f', sqrtDigits))
	if err != nil {
		return decimal.Zero, err
	}
	return out, nil
}

// BandUsd is the USD valuation of one band
type BandUsd struct {
	CollateralUsd         decimal.Decimal
	CollateralBorrowedUsd decimal.Decimal
}

// BandUsdValue values the band collateral at the geometric mean of the band
// prices and adds the borrowed balance.
func BandUsdValue(b types.BandBalance, pUp, pDown decimal.Decimal) (BandUsd, error) {
	mean, err := Sqrt(pUp.Mul(pDown))
	if err != nil {
		return BandUsd{}, fmt.Errorf("band price mean: %w", err)
	}
	collateralUsd := b.Collateral.Mul(mean)
	return BandUsd{
		CollateralUsd:         collateralUsd,
		CollateralBorrowedUsd: collateralUsd.Add(b.Borrowed),
	}, nil
}

// Median returns the arithmetic midpoint of a band's price pair
func Median(pUp, pDown decimal.Decimal) decimal.Decimal {
	return pUp.Add(pDown).Div(decimal.NewFromInt(2))
}
