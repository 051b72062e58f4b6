package types

import (
	"github.com/shopspring/decimal"
)

// UserState is the raw loan state of a user in one market
type UserState struct {
	Collateral decimal.Decimal `json:"collateral"`
	Borrowed   decimal.Decimal `json:"borrowed"`
	Debt       decimal.Decimal `json:"debt"`
	N          int             `json:"N"`
}

// UserLoss is the realized soft-liquidation loss of a position
type UserLoss struct {
	DepositedCollateral         decimal.Decimal `json:"deposited_collateral"`
	CurrentCollateralEstimation decimal.Decimal `json:"current_collateral_estimation"`
	Loss                        decimal.Decimal `json:"loss"`
	LossPct                     decimal.Decimal `json:"loss_pct"`
}

// Rates are annualized borrow and lend rates
type Rates struct {
	BorrowApr decimal.Decimal `json:"borrowApr"`
	LendApr   decimal.Decimal `json:"lendApr"`
	BorrowApy decimal.Decimal `json:"borrowApy"`
	LendApy   decimal.Decimal `json:"lendApy"`
}

// WalletBalances are the token balances a user holds outside the market
type WalletBalances struct {
	Collateral  decimal.Decimal `json:"collateral"`
	Borrowed    decimal.Decimal `json:"borrowed"`
	VaultShares decimal.Decimal `json:"vaultShares"`
	Gauge       decimal.Decimal `json:"gauge"`
}
