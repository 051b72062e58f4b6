package types

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// RawBands is a band pair in the order the market returns it: [high, low].
// Convert it with math.DisplayBands before use.
type RawBands [2]int

// BandRange is a band pair in display order: [low, high]
type BandRange [2]int

// IsZero reports whether the range is the [0, 0] placeholder
func (b BandRange) IsZero() bool {
	return b[0] == 0 && b[1] == 0
}

// BandBalance holds the AMM balances of one band
type BandBalance struct {
	Borrowed   decimal.Decimal `json:"borrowed"`
	Collateral decimal.Decimal `json:"collateral"`
}

// IsEmpty reports whether both balances are zero
func (b BandBalance) IsEmpty() bool {
	return b.Borrowed.IsZero() && b.Collateral.IsZero()
}

// BandsBalances maps a signed band index to its balances
type BandsBalances map[int]BandBalance

// ParseBandsBalances converts a string-keyed map, as decoded from JSON or YAML,
// into numerically keyed balances.
func ParseBandsBalances(raw map[string]BandBalance) (BandsBalances, error) {
	out := make(BandsBalances, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid band index %q: %w", k, err)
		}
		out[n] = v
	}
	return out, nil
}

// ParsedBand is one chart row of a bands summary
type ParsedBand struct {
	N                     int             `json:"n"`
	Borrowed              decimal.Decimal `json:"borrowed"`
	Collateral            decimal.Decimal `json:"collateral"`
	PUp                   decimal.Decimal `json:"p_up"`
	PDown                 decimal.Decimal `json:"p_down"`
	PUpDownMedian         decimal.Decimal `json:"pUpDownMedian"`
	CollateralUsd         decimal.Decimal `json:"collateralUsd"`
	CollateralBorrowedUsd decimal.Decimal `json:"collateralBorrowedUsd"`
	IsLiquidationBand     bool            `json:"isLiquidationBand"`
}
