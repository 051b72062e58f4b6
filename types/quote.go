package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Gas is an estimate in gas units. Some estimates cover more than one
// transaction (e.g. two approvals), hence the slice.
type Gas []uint64

// Total sums all estimates
func (g Gas) Total() uint64 {
	var total uint64
	for _, v := range g {
		total += v
	}
	return total
}

// LoanQuote is a projection of a position after a loan action.
// Unset health and nil bands/prices are the placeholders used when the
// position is being closed.
type LoanQuote struct {
	HealthFull    Amount            `json:"healthFull"`
	HealthNotFull Amount            `json:"healthNotFull"`
	FutureRates   *Rates            `json:"futureRates,omitempty"`
	Bands         BandRange         `json:"bands"`
	Prices        []decimal.Decimal `json:"prices"`
	Error         string            `json:"error"`
}

// ExpectedCollateral describes the collateral a leveraged create or borrow-more yields
type ExpectedCollateral struct {
	TotalCollateral            decimal.Decimal `json:"totalCollateral"`
	UserCollateral             decimal.Decimal `json:"userCollateral"`
	CollateralFromUserBorrowed decimal.Decimal `json:"collateralFromUserBorrowed"`
	CollateralFromDebt         decimal.Decimal `json:"collateralFromDebt"`
	Leverage                   decimal.Decimal `json:"leverage"`
	AvgPrice                   decimal.Decimal `json:"avgPrice"`
}

// ExpectedBorrowed describes the borrowed tokens a leveraged repay produces
type ExpectedBorrowed struct {
	TotalBorrowed               decimal.Decimal `json:"totalBorrowed"`
	BorrowedFromStateCollateral decimal.Decimal `json:"borrowedFromStateCollateral"`
	BorrowedFromUserCollateral  decimal.Decimal `json:"borrowedFromUserCollateral"`
	UserBorrowed                decimal.Decimal `json:"userBorrowed"`
	AvgPrice                    decimal.Decimal `json:"avgPrice"`
}

// MaxRecvLeverage is the leveraged max-receive breakdown
type MaxRecvLeverage struct {
	MaxDebt                    decimal.Decimal `json:"maxDebt"`
	MaxTotalCollateral         decimal.Decimal `json:"maxTotalCollateral"`
	UserCollateral             decimal.Decimal `json:"userCollateral"`
	CollateralFromUserBorrowed decimal.Decimal `json:"collateralFromUserBorrowed"`
	CollateralFromMaxDebt      decimal.Decimal `json:"collateralFromMaxDebt"`
	AvgPrice                   decimal.Decimal `json:"avgPrice"`
}

// PriceImpact is a computed impact percentage, or "N/A" when it was not computed
type PriceImpact struct {
	value decimal.Decimal
	ok    bool
}

// NotAvailable is the "N/A" price impact
var NotAvailable = PriceImpact{}

func NewPriceImpact(d decimal.Decimal) PriceImpact {
	return PriceImpact{value: d, ok: true}
}

// Value returns the impact and whether it was computed
func (p PriceImpact) Value() (decimal.Decimal, bool) {
	return p.value, p.ok
}

func (p PriceImpact) String() string {
	if !p.ok {
		return "N/A"
	}
	return p.value.String()
}

func (p PriceImpact) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// IsHigh reports whether |impact| exceeds the slippage tolerance. It is
// false when the impact is not available or the slippage is not positive.
func (p PriceImpact) IsHigh(slippage decimal.Decimal) bool {
	if !p.ok || !slippage.IsPositive() {
		return false
	}
	return p.value.Abs().GreaterThan(slippage)
}

// LeverageQuote extends LoanQuote with routing details
type LeverageQuote struct {
	LoanQuote
	ExpectedCollateral *ExpectedCollateral `json:"expectedCollateral,omitempty"`
	ExpectedBorrowed   *ExpectedBorrowed   `json:"expectedBorrowed,omitempty"`
	RouteImage         string              `json:"routeImage"`
	PriceImpact        PriceImpact         `json:"priceImpact"`
	IsHighPriceImpact  bool                `json:"isHighPriceImpact"`
}

// LiqRange is one entry of a liquidation range sweep
type LiqRange struct {
	N            int               `json:"n"`
	SliderIdx    int               `json:"sliderIdx"`
	MaxRecv      decimal.Decimal   `json:"maxRecv"`
	MaxRecvError string            `json:"maxRecvError"`
	Bands        BandRange         `json:"bands"`
	Prices       []decimal.Decimal `json:"prices"`
}
