package sdk

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/types"
)

// LoanParams are the inputs of a loan action. Fields an action does not
// use are ignored.
type LoanParams struct {
	User            common.Address
	Collateral      decimal.Decimal
	Borrowed        decimal.Decimal
	Debt            decimal.Decimal
	StateCollateral decimal.Decimal
	N               int
	Slippage        decimal.Decimal
}

// LoanFamily is the uniform method set of a loan action. For remove
// collateral MaxRecv is the max removable amount, for self-liquidation the
// tokens needed to liquidate.
type LoanFamily interface {
	MaxRecv(ctx context.Context, p LoanParams) (decimal.Decimal, error)
	Health(ctx context.Context, p LoanParams, full bool) (decimal.Decimal, error)
	Bands(ctx context.Context, p LoanParams) (types.RawBands, error)
	Prices(ctx context.Context, p LoanParams) ([]decimal.Decimal, error)
	IsApproved(ctx context.Context, p LoanParams) (bool, error)
	Approve(ctx context.Context, p LoanParams) ([]common.Hash, error)
	Execute(ctx context.Context, p LoanParams) (common.Hash, error)
	EstimateGas(ctx context.Context, p LoanParams) (types.Gas, error)
	EstimateApproveGas(ctx context.Context, p LoanParams) (types.Gas, error)
}

// LeverageFamily adds swap routing to a loan action
type LeverageFamily interface {
	LoanFamily
	MaxRecvLeverage(ctx context.Context, p LoanParams) (types.MaxRecvLeverage, error)
	ExpectedCollateral(ctx context.Context, p LoanParams) (types.ExpectedCollateral, error)
	ExpectedBorrowed(ctx context.Context, p LoanParams) (types.ExpectedBorrowed, error)
	RouteImage(ctx context.Context, p LoanParams) (string, error)
	PriceImpact(ctx context.Context, p LoanParams) (decimal.Decimal, error)
	// IsFull reports whether a leveraged repay closes the position
	IsFull(ctx context.Context, p LoanParams) (bool, error)
	// IsAvailable reports whether a leveraged repay can be routed
	IsAvailable(ctx context.Context, p LoanParams) (bool, error)
}

// RangeSweeper returns create-loan projections for every band count in one call each
type RangeSweeper interface {
	MaxRecvAllRanges(ctx context.Context, p LoanParams) (map[int]decimal.Decimal, error)
	BandsAllRanges(ctx context.Context, p LoanParams) (map[int]types.RawBands, error)
	PricesAllRanges(ctx context.Context, p LoanParams) (map[int][]decimal.Decimal, error)
}

// Leverage is one leverage implementation of a market
type Leverage interface {
	Version() types.LeverageVersion
	MaxLeverage(ctx context.Context, n int) (decimal.Decimal, error)
	Family(action types.Action) LeverageFamily
	Sweep() RangeSweeper
}
