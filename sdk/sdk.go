// Package sdk declares the on-chain market and provider surfaces this
// module consumes. Implementations wrap a chain client; sdk/fixture provides
// an in-memory one.
package sdk

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/types"
)

// ErrUnsupported is returned by an operation the market does not implement
var ErrUnsupported = errors.New("operation not supported by market")

// Market is the per-market SDK object
type Market interface {
	Info() types.Market
	Stats() Stats
	Oracle() Oracle
	User() UserReader
	// Family returns the method family of a loan action, or nil if the
	// market does not offer it
	Family(action types.Action) LoanFamily
	Sweep() RangeSweeper
	// Leverage returns the given leverage implementation, or nil
	Leverage(version types.LeverageVersion) Leverage
	// Vault returns the market's vault, or nil for markets without one
	Vault() Vault
	Wallet() Wallet
}

type BandsInfo struct {
	ActiveBand      int
	MaxBand         int
	MinBand         int
	LiquidationBand *int
}

type CapAndAvailable struct {
	Cap       decimal.Decimal `json:"cap"`
	Available decimal.Decimal `json:"available"`
}

type Parameters struct {
	Fee                 decimal.Decimal `json:"fee"`
	AdminFee            decimal.Decimal `json:"admin_fee"`
	LiquidationDiscount decimal.Decimal `json:"liquidation_discount"`
	LoanDiscount        decimal.Decimal `json:"loan_discount"`
	BasePrice           decimal.Decimal `json:"base_price"`
	A                   int             `json:"A"`
}

type AmmBalances struct {
	Borrowed   decimal.Decimal `json:"borrowed"`
	Collateral decimal.Decimal `json:"collateral"`
}

// Stats are market-wide reads. useMultiCall and useAPI are forwarded as-is.
type Stats interface {
	Parameters(ctx context.Context) (Parameters, error)
	Balances(ctx context.Context) ([2]decimal.Decimal, error)
	BandsInfo(ctx context.Context) (BandsInfo, error)
	BandsBalances(ctx context.Context) (types.BandsBalances, error)
	BandBalances(ctx context.Context, n int) (types.BandBalance, error)
	AmmBalances(ctx context.Context, useMultiCall, useAPI bool) (AmmBalances, error)
	CapAndAvailable(ctx context.Context, useMultiCall, useAPI bool) (CapAndAvailable, error)
	TotalDebt(ctx context.Context, useMultiCall, useAPI bool) (decimal.Decimal, error)
	Rates(ctx context.Context, useMultiCall, useAPI bool) (types.Rates, error)
	FutureRates(ctx context.Context, dReserves, dDebt decimal.Decimal) (types.Rates, error)
}

// Oracle reads AMM and oracle prices
type Oracle interface {
	OraclePrice(ctx context.Context) (decimal.Decimal, error)
	// OraclePriceBand returns nil when the band is not known
	OraclePriceBand(ctx context.Context) (*int, error)
	Price(ctx context.Context) (decimal.Decimal, error)
	BasePrice(ctx context.Context) (decimal.Decimal, error)
	// CalcBandPrices returns [p_up, p_down] of band n
	CalcBandPrices(ctx context.Context, n int) ([2]decimal.Decimal, error)
	CalcRangePct(ctx context.Context, n int) (decimal.Decimal, error)
}

// UserReader reads one user's position
type UserReader interface {
	State(ctx context.Context, user common.Address) (types.UserState, error)
	Health(ctx context.Context, user common.Address, full bool) (decimal.Decimal, error)
	Range(ctx context.Context, user common.Address) (int, error)
	Bands(ctx context.Context, user common.Address) (types.RawBands, error)
	Prices(ctx context.Context, user common.Address) ([]decimal.Decimal, error)
	BandsBalances(ctx context.Context, user common.Address) (types.BandsBalances, error)
	LoanExists(ctx context.Context, user common.Address) (bool, error)
	Loss(ctx context.Context, user common.Address) (types.UserLoss, error)
}

// LeverageReader is implemented by user readers that report the current
// effective leverage of a position
type LeverageReader interface {
	CurrentLeverage(ctx context.Context, user common.Address) (decimal.Decimal, error)
}

type Wallet interface {
	Balances(ctx context.Context, user common.Address) (types.WalletBalances, error)
}

// PreferredLeverage returns the leverage implementation a market's
// leveraged quotes use. Mint markets prefer V2 when they expose it; every
// other market uses V1. It returns nil for markets without leverage.
func PreferredLeverage(m Market) Leverage {
	if m.Info().Kind == types.MarketKindMint {
		if l := m.Leverage(types.LeverageV2); l != nil {
			return l
		}
	}
	return m.Leverage(types.LeverageV1)
}
