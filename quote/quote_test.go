package quote

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/llamalend/gas"
	"github.com/michaelpento.lv/llamalend/sdk/fixture"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils/metrics"
	"github.com/michaelpento.lv/llamalend/utils/testutils"
)

const (
	lendID = "one-way-market-0"
	mintID = "crvusd-wsteth"
)

var borrower = common.HexToAddress("0x1111111111111111111111111111111111111111")

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func loadMarket(t *testing.T, id string, failures map[string]string) *fixture.Market {
	return testutils.Market(t, id, failures)
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	return NewEngine(zaptest.NewLogger(t), opts...)
}

func loanInput(collateral, debt string, n int) Input {
	return Input{
		User:       borrower,
		Collateral: types.MustAmount(collateral),
		Debt:       types.MustAmount(debt),
		N:          n,
	}
}

func TestLiqRanges(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	res := newEngine(t).LiqRanges(context.Background(), m, loanInput("1000", "500", 0))

	require.Len(t, res.LiqRanges, 47)
	for i, r := range res.LiqRanges {
		assert.Equal(t, i, r.SliderIdx)
		assert.Equal(t, 4+i, r.N)
		assert.Empty(t, r.MaxRecvError)
		assert.Equal(t, types.BandRange{30, 29 + r.N}, r.Bands)
		require.Len(t, r.Prices, 2)
		assert.True(t, r.Prices[0].GreaterThan(r.Prices[1]), "prices run high to low")
	}
	assert.True(t, d("2407860").Equal(res.LiqRanges[0].MaxRecv), res.LiqRanges[0].MaxRecv.String())
	assert.True(t, d("1842750").Equal(res.LiqRanges[46].MaxRecv), res.LiqRanges[46].MaxRecv.String())
	assert.True(t, strings.HasPrefix(res.ActiveKey, lendID+"-createLoan-liqRanges-"))

	assert.Equal(t, 1, m.Calls("sweep.maxRecvAllRanges"))
	assert.Equal(t, 1, m.Calls("sweep.bandsAllRanges"))
	assert.Equal(t, 1, m.Calls("sweep.pricesAllRanges"))
}

func TestLiqRangesPartialFailure(t *testing.T) {
	m := loadMarket(t, lendID, map[string]string{
		"sweep.maxRecvAllRanges": "max recv reverted",
		"sweep.bandsAllRanges":   "bands reverted",
	})
	res := newEngine(t).LiqRanges(context.Background(), m, loanInput("1000", "500", 0))

	require.Len(t, res.LiqRanges, 47)
	for i, r := range res.LiqRanges {
		assert.Equal(t, i, r.SliderIdx)
		assert.True(t, r.MaxRecv.IsZero())
		assert.Equal(t, "max recv reverted", r.MaxRecvError)
		assert.Equal(t, types.BandRange{0, 0}, r.Bands)
		assert.Len(t, r.Prices, 2)
	}
}

func TestLiqRangesLeverage(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	in := loanInput("1", "1000", 0)
	in.Borrowed = types.MustAmount("500")
	res := newEngine(t).LiqRangesLeverage(context.Background(), m, in)

	require.Len(t, res.LiqRanges, 47)
	assert.Equal(t, 1, m.Calls("leverage.sweep.maxRecvAllRanges"))
	assert.Equal(t, 0, m.CallsWithPrefix("sweep."))
	for _, r := range res.LiqRanges {
		assert.True(t, r.MaxRecv.IsPositive())
	}

	noLeverage := loadMarket(t, "one-way-market-1", nil)
	res = newEngine(t).LiqRangesLeverage(context.Background(), noLeverage, in)
	require.Len(t, res.LiqRanges, 26)
	assert.Equal(t, ErrNoLeverage.Error(), res.LiqRanges[0].MaxRecvError)
}

func TestLiqRangesWithoutCollateral(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	e := newEngine(t)

	res := e.LiqRanges(context.Background(), m, Input{User: borrower})
	require.Len(t, res.LiqRanges, 47)
	for i, r := range res.LiqRanges {
		assert.Equal(t, i, r.SliderIdx)
		assert.True(t, r.MaxRecv.IsZero())
		assert.Empty(t, r.MaxRecvError)
		assert.Equal(t, types.BandRange{0, 0}, r.Bands)
		assert.Empty(t, r.Prices)
	}
	assert.Equal(t, 0, m.CallsWithPrefix("sweep."))

	res = e.LiqRangesLeverage(context.Background(), m, Input{User: borrower, Debt: types.MustAmount("1000")})
	require.Len(t, res.LiqRanges, 47)
	assert.Equal(t, 0, m.CallsWithPrefix("leverage.sweep."))

	res = e.LiqRanges(context.Background(), m, Input{User: borrower, Collateral: types.MustAmount("0")})
	assert.Equal(t, 1, m.Calls("sweep.maxRecvAllRanges"), "an entered zero is still a value")
}

func TestDetailsWithoutAmounts(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	e := newEngine(t)
	ctx := context.Background()

	res := e.CreateLoanDetail(ctx, m, Input{User: borrower})
	assert.Empty(t, res.Error)
	assert.False(t, res.HealthFull.IsSet())
	assert.False(t, res.HealthNotFull.IsSet())
	assert.Nil(t, res.FutureRates)
	assert.Equal(t, types.BandRange{0, 0}, res.Bands)
	assert.Empty(t, res.Prices)

	res = e.CreateLoanDetail(ctx, m, loanInput("1000", "", 10))
	assert.False(t, res.HealthFull.IsSet(), "a new loan needs a debt")

	res = e.BorrowMoreDetail(ctx, m, Input{User: borrower, Collateral: types.MustAmount("1")})
	assert.False(t, res.HealthFull.IsSet())
	res = e.RepayDetail(ctx, m, Input{User: borrower})
	assert.False(t, res.HealthFull.IsSet())
	res = e.AddCollateralDetail(ctx, m, Input{User: borrower})
	assert.Empty(t, res.Error)
	assert.False(t, res.HealthFull.IsSet())

	lev := e.CreateLoanDetailLeverage(ctx, m, Input{User: borrower, Debt: types.MustAmount("1000")})
	assert.Empty(t, lev.Error)
	assert.Nil(t, lev.ExpectedCollateral)
	assert.Equal(t, "N/A", lev.PriceImpact.String())
	repay := e.RepayDetailLeverage(ctx, m, Input{User: borrower})
	assert.Empty(t, repay.Error)
	assert.Nil(t, repay.ExpectedBorrowed)

	for _, prefix := range []string{"createLoan.", "borrowMore.", "repay.", "addCollateral.", "leverage.", "stats."} {
		assert.Equal(t, 0, m.CallsWithPrefix(prefix), prefix)
	}
}

func TestMaxRecv(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	e := newEngine(t)

	res := e.MaxRecv(context.Background(), m, types.ActionCreateLoan, loanInput("1000", "", 10))
	require.Empty(t, res.Error)
	// 1000 * 2700 * 0.91 * 0.95
	assert.True(t, d("2334150").Equal(res.MaxRecv), res.MaxRecv.String())

	failing := loadMarket(t, lendID, map[string]string{"borrowMore.maxRecv": "node timeout"})
	res = e.MaxRecv(context.Background(), failing, types.ActionBorrowMore, loanInput("1", "", 0))
	assert.Equal(t, types.ErrCodeMaxAmount, res.Error)
	assert.True(t, res.MaxRecv.IsZero())
}

func TestCreateLoanDetail(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	res := newEngine(t).CreateLoanDetail(context.Background(), m, loanInput("1000", "500", 10))

	require.Empty(t, res.Error)
	full, ok := res.HealthFull.Value()
	require.True(t, ok)
	assert.True(t, d("491300").Equal(full), full.String())
	notFull, ok := res.HealthNotFull.Value()
	require.True(t, ok)
	assert.True(t, d("491297").Equal(notFull), notFull.String())
	assert.Equal(t, types.BandRange{30, 39}, res.Bands)
	assert.Len(t, res.Prices, 2)
	require.NotNil(t, res.FutureRates)
	assert.True(t, res.FutureRates.BorrowApr.GreaterThan(d("8.5")), "new debt raises utilization")
}

func TestCreateLoanDetailErrorPriority(t *testing.T) {
	tests := []struct {
		name     string
		failures map[string]string
		expected string
		prices   int
	}{
		{
			name:     "rates before bands",
			failures: map[string]string{"stats.futureRates": "rates down", "createLoan.bands": "bands down"},
			expected: "rates down",
			prices:   2,
		},
		{
			name:     "bands before health",
			failures: map[string]string{"createLoan.bands": "bands down", "createLoan.healthFull": "health down"},
			expected: "bands down",
			prices:   2,
		},
		{
			name:     "health before prices",
			failures: map[string]string{"createLoan.prices": "prices down", "createLoan.healthNotFull": "health down"},
			expected: "health down",
			prices:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loadMarket(t, lendID, tt.failures)
			res := newEngine(t).CreateLoanDetail(context.Background(), m, loanInput("1000", "500", 10))
			assert.Equal(t, tt.expected, res.Error)
			assert.Len(t, res.Prices, tt.prices)
		})
	}
}

func TestCreateLoanDetailKeepsResolvedFields(t *testing.T) {
	m := loadMarket(t, lendID, map[string]string{"createLoan.healthFull": "health down"})
	res := newEngine(t).CreateLoanDetail(context.Background(), m, loanInput("1000", "500", 10))

	assert.Equal(t, "health down", res.Error)
	assert.False(t, res.HealthFull.IsSet())
	assert.True(t, res.HealthNotFull.IsSet())
	assert.Equal(t, types.BandRange{30, 39}, res.Bands)
	assert.NotNil(t, res.FutureRates)
}

func TestRepayDetailFull(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	in := Input{User: borrower, IsFullRepay: true}
	res := newEngine(t).RepayDetail(context.Background(), m, in)

	require.Empty(t, res.Error)
	assert.False(t, res.HealthFull.IsSet())
	assert.False(t, res.HealthNotFull.IsSet())
	assert.Equal(t, types.BandRange{0, 0}, res.Bands)
	assert.NotNil(t, res.Prices)
	assert.Empty(t, res.Prices)
	require.NotNil(t, res.FutureRates)
	assert.True(t, res.FutureRates.BorrowApr.LessThan(d("8.5")), "closing debt lowers utilization")
	assert.Equal(t, 0, m.CallsWithPrefix("repay."))
	assert.Equal(t, 0, m.CallsWithPrefix("fullRepay."))
	assert.True(t, strings.HasPrefix(res.ActiveKey, lendID+"-fullRepay-detail-"))
}

func TestRepayDetailPartial(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	res := newEngine(t).RepayDetail(context.Background(), m, Input{User: borrower, Debt: types.MustAmount("5000")})

	require.Empty(t, res.Error)
	assert.True(t, res.HealthFull.IsSet())
	assert.Equal(t, 1, m.Calls("repay.bands"))
}

func TestCollateralDetail(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	e := newEngine(t)

	res := e.AddCollateralDetail(context.Background(), m, Input{User: borrower, Collateral: types.MustAmount("1")})
	require.Empty(t, res.Error)
	assert.True(t, res.HealthFull.IsSet())
	assert.Nil(t, res.FutureRates)
	assert.Equal(t, 0, m.Calls("stats.futureRates"))

	failing := loadMarket(t, lendID, map[string]string{"removeCollateral.prices": "prices down"})
	res = e.RemoveCollateralDetail(context.Background(), failing, Input{User: borrower, Collateral: types.MustAmount("1")})
	assert.Equal(t, types.ErrCodeDetails, res.Error)
	assert.False(t, res.HealthFull.IsSet(), "collateral details are all or nothing")
	assert.Equal(t, types.BandRange{0, 0}, res.Bands)
}

func TestMaxRemovable(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	res := newEngine(t).MaxRemovable(context.Background(), m, Input{User: borrower})
	require.Empty(t, res.Error)
	assert.True(t, res.MaxRecv.IsPositive())
	assert.True(t, res.MaxRecv.LessThan(d("9.5")))

	failing := loadMarket(t, lendID, map[string]string{"removeCollateral.maxRecv": "boom"})
	res = newEngine(t).MaxRemovable(context.Background(), failing, Input{User: borrower})
	assert.Equal(t, types.ErrCodeMaxRemovable, res.Error)
	assert.True(t, res.MaxRecv.IsZero())
}

func TestSelfLiquidateDetail(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	res := newEngine(t).SelfLiquidateDetail(context.Background(), m, Input{User: borrower})

	require.Empty(t, res.Error)
	assert.True(t, d("13800").Equal(res.TokensToLiquidate), res.TokensToLiquidate.String())
	assert.NotNil(t, res.FutureRates)

	failing := loadMarket(t, lendID, map[string]string{"selfLiquidate.maxRecv": "user rejected action"})
	res = newEngine(t).SelfLiquidateDetail(context.Background(), failing, Input{User: borrower})
	assert.Equal(t, types.ErrCodeUserRejected, res.Error)
	assert.Nil(t, res.FutureRates)
}

func leveragedInput(slippage string) Input {
	return Input{
		User:       borrower,
		Collateral: types.MustAmount("1"),
		Borrowed:   types.MustAmount("1000"),
		Debt:       types.MustAmount("4000"),
		N:          10,
		Slippage:   d(slippage),
	}
}

func TestCreateLoanDetailLeverage(t *testing.T) {
	m := loadMarket(t, mintID, nil)
	e := newEngine(t)

	res := e.CreateLoanDetailLeverage(context.Background(), m, leveragedInput("0.01"))
	require.Empty(t, res.Error)
	require.NotNil(t, res.ExpectedCollateral)
	assert.True(t, res.ExpectedCollateral.Leverage.GreaterThan(decimal.NewFromInt(1)))
	impact, ok := res.PriceImpact.Value()
	require.True(t, ok)
	// 5000 swapped against 15000 * 3100 of liquidity
	assert.True(t, d("0.0108").Equal(impact), impact.String())
	assert.True(t, res.IsHighPriceImpact)
	assert.Contains(t, res.RouteImage, mintID)
	assert.True(t, res.HealthFull.IsSet())
	assert.NotNil(t, res.FutureRates)
	assert.Equal(t, 1, m.Calls("leverageV2.createLoan.expectedCollateral"))
	assert.Equal(t, 0, m.CallsWithPrefix("leverage.createLoan."), "mint markets prefer v2")

	res = e.CreateLoanDetailLeverage(context.Background(), m, leveragedInput("0.1"))
	assert.False(t, res.IsHighPriceImpact)

	res = e.CreateLoanDetailLeverage(context.Background(), m, leveragedInput("0"))
	assert.False(t, res.IsHighPriceImpact, "no slippage tolerance means no comparison")
}

func TestCreateLoanDetailLeverageFailures(t *testing.T) {
	t.Run("price impact not available", func(t *testing.T) {
		m := loadMarket(t, mintID, map[string]string{
			"leverageV2.createLoan.priceImpact": "quote service down",
			"leverageV2.createLoan.routeImage":  "router down",
		})
		res := newEngine(t).CreateLoanDetailLeverage(context.Background(), m, leveragedInput("0.01"))
		assert.Equal(t, "quote service down", res.Error)
		assert.Equal(t, "N/A", res.PriceImpact.String())
		assert.False(t, res.IsHighPriceImpact)
		assert.Empty(t, res.RouteImage)
		assert.True(t, res.HealthFull.IsSet())
	})

	t.Run("expected collateral first", func(t *testing.T) {
		m := loadMarket(t, mintID, map[string]string{
			"leverageV2.createLoan.expectedCollateral": "Bad swap type",
		})
		res := newEngine(t).CreateLoanDetailLeverage(context.Background(), m, leveragedInput("0.01"))
		assert.Equal(t, "Bad swap type", res.Error)
		assert.Nil(t, res.ExpectedCollateral)
		assert.Equal(t, 0, m.Calls("leverageV2.createLoan.healthFull"))
	})

	t.Run("health before rates", func(t *testing.T) {
		m := loadMarket(t, mintID, map[string]string{
			"leverageV2.createLoan.healthNotFull": "health down",
			"stats.futureRates":                   "rates down",
		})
		res := newEngine(t).CreateLoanDetailLeverage(context.Background(), m, leveragedInput("0.01"))
		assert.Equal(t, "health down", res.Error)
		assert.Nil(t, res.FutureRates)
	})

	t.Run("no leverage", func(t *testing.T) {
		m := loadMarket(t, "one-way-market-1", nil)
		res := newEngine(t).CreateLoanDetailLeverage(context.Background(), m, leveragedInput("0.01"))
		assert.Equal(t, ErrNoLeverage.Error(), res.Error)
		assert.Equal(t, "N/A", res.PriceImpact.String())
	})
}

func TestRepayDetailLeverage(t *testing.T) {
	e := newEngine(t)

	t.Run("full", func(t *testing.T) {
		m := loadMarket(t, lendID, nil)
		in := Input{User: borrower, StateCollateral: types.MustAmount("9.5"), Slippage: d("0.1")}
		res := e.RepayDetailLeverage(context.Background(), m, in)

		require.Empty(t, res.Error)
		assert.True(t, res.IsFullRepay)
		assert.True(t, res.IsAvailable)
		require.NotNil(t, res.ExpectedBorrowed)
		assert.False(t, res.HealthFull.IsSet())
		assert.Equal(t, types.BandRange{0, 0}, res.Bands)
		assert.NotNil(t, res.Prices)
		assert.Empty(t, res.Prices)
		assert.NotNil(t, res.FutureRates)
		assert.Equal(t, 0, m.Calls("leverage.repay.healthFull"))
	})

	t.Run("partial", func(t *testing.T) {
		m := loadMarket(t, lendID, nil)
		in := Input{User: borrower, StateCollateral: types.MustAmount("1"), Slippage: d("0.1")}
		res := e.RepayDetailLeverage(context.Background(), m, in)

		require.Empty(t, res.Error)
		assert.False(t, res.IsFullRepay)
		assert.True(t, res.HealthFull.IsSet())
		assert.False(t, res.Bands.IsZero())
	})

	t.Run("availability failure is reported last", func(t *testing.T) {
		m := loadMarket(t, lendID, map[string]string{"leverage.repay.isAvailable": "router down"})
		in := Input{User: borrower, StateCollateral: types.MustAmount("1")}
		res := e.RepayDetailLeverage(context.Background(), m, in)
		assert.Equal(t, "router down", res.Error)
		assert.False(t, res.IsAvailable)
	})
}

func TestMaxRecvLeverage(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	res := newEngine(t).MaxRecvLeverage(context.Background(), m, types.ActionCreateLoan, leveragedInput("0"))
	require.Empty(t, res.Error)
	assert.True(t, res.MaxDebt.IsPositive())
	assert.True(t, res.MaxTotalCollateral.GreaterThan(d("1")))

	failing := loadMarket(t, lendID, map[string]string{"leverage.createLoan.maxRecv": "Bad swap type"})
	res = newEngine(t).MaxRecvLeverage(context.Background(), failing, types.ActionCreateLoan, leveragedInput("0"))
	assert.Equal(t, types.ErrCodeSwapNotAvailable, res.Error)
}

func TestEstimateGasAndApproval(t *testing.T) {
	t.Run("liquidation mode", func(t *testing.T) {
		m := loadMarket(t, mintID, map[string]string{
			"addCollateral.estimateGas": "execution reverted: Not allowed in liquidation mode",
		})
		res := newEngine(t).EstimateGasAndApproval(context.Background(), m, types.ActionAddCollateral, Input{User: borrower, Collateral: types.MustAmount("1")})
		assert.Equal(t, types.ErrCodeLiquidationMode, res.Error)
	})

	t.Run("generic failure", func(t *testing.T) {
		m := loadMarket(t, mintID, map[string]string{"addCollateral.estimateGas": "out of gas"})
		res := newEngine(t).EstimateGasAndApproval(context.Background(), m, types.ActionAddCollateral, Input{User: borrower})
		assert.Equal(t, types.ErrCodeEstGasApproval, res.Error)
		assert.True(t, res.IsApproved)
	})

	t.Run("match is case sensitive", func(t *testing.T) {
		m := loadMarket(t, mintID, map[string]string{"addCollateral.estimateGas": "Liquidation Mode"})
		res := newEngine(t).EstimateGasAndApproval(context.Background(), m, types.ActionAddCollateral, Input{User: borrower})
		assert.Equal(t, types.ErrCodeEstGasApproval, res.Error)
	})

	t.Run("not approved estimates approvals", func(t *testing.T) {
		m := loadMarket(t, lendID, nil)
		res := newEngine(t).EstimateGasAndApproval(context.Background(), m, types.ActionCreateLoan, loanInput("1", "100", 10))
		require.Empty(t, res.Error)
		assert.False(t, res.IsApproved)
		assert.Equal(t, types.Gas{46_000}, res.EstimatedGas)
		assert.Equal(t, 0, m.Calls("createLoan.estimateGas"))
		assert.False(t, res.Cost.IsSet())
	})

	t.Run("full repay family", func(t *testing.T) {
		m := loadMarket(t, mintID, nil)
		res := newEngine(t).EstimateGasAndApproval(context.Background(), m, types.ActionRepay, Input{User: borrower, IsFullRepay: true})
		require.Empty(t, res.Error)
		assert.Equal(t, types.Gas{420_000}, res.EstimatedGas)
		assert.Equal(t, 1, m.Calls("fullRepay.isApproved"))
	})

	t.Run("remove collateral needs no approval", func(t *testing.T) {
		m := loadMarket(t, lendID, nil)
		res := newEngine(t).EstimateGasAndApproval(context.Background(), m, types.ActionRemoveCollateral, Input{User: borrower})
		require.Empty(t, res.Error)
		assert.True(t, res.IsApproved)
		assert.Equal(t, 0, m.Calls("removeCollateral.isApproved"))
	})
}

func TestEstimateGasAndApprovalLeverage(t *testing.T) {
	m := loadMarket(t, mintID, nil)
	res := newEngine(t).EstimateGasAndApprovalLeverage(context.Background(), m, types.ActionRepay, Input{User: borrower, StateCollateral: types.MustAmount("1")})
	require.Empty(t, res.Error)
	assert.Equal(t, 1, m.Calls("leverageV2.repay.expectedBorrowed"))
	assert.Equal(t, types.Gas{800_000}, res.EstimatedGas)
}

type staticFees struct{}

func (staticFees) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(1), BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (staticFees) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func TestEstimateCost(t *testing.T) {
	m := loadMarket(t, mintID, nil)
	e := newEngine(t, WithGasEstimator(gas.NewEstimator(staticFees{}, time.Hour, zaptest.NewLogger(t))))

	res := e.EstimateGasAndApproval(context.Background(), m, types.ActionCreateLoan, loanInput("1", "100", 10))
	require.Empty(t, res.Error)
	cost, ok := res.Cost.Value()
	require.True(t, ok)
	// 600000 gas at 11 gwei
	assert.True(t, d("0.0066").Equal(cost), cost.String())
}

func TestVaultQuotes(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	e := newEngine(t)

	limit := e.VaultMax(context.Background(), m, types.VaultDeposit, borrower)
	require.Empty(t, limit.Error)
	assert.True(t, d("5000").Equal(limit.Max))

	detail := e.VaultDetail(context.Background(), m, types.VaultRedeem, types.MustAmount("100"))
	require.Empty(t, detail.Error)
	assert.True(t, d("102").Equal(detail.Preview), detail.Preview.String())
	require.NotNil(t, detail.FutureRates)

	detail = e.VaultDetail(context.Background(), m, types.VaultDeposit, types.MustAmount("102"))
	require.Empty(t, detail.Error)
	assert.True(t, d("100").Equal(detail.Preview), detail.Preview.String())

	detail = e.VaultDetail(context.Background(), m, types.VaultStake, types.MustAmount("1"))
	assert.Equal(t, types.ErrCodeAPI, detail.Error)

	noVault := loadMarket(t, mintID, nil)
	limit = e.VaultMax(context.Background(), noVault, types.VaultDeposit, borrower)
	assert.Equal(t, types.ErrCodeAPI, limit.Error)
}

func TestVaultEstimate(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	e := newEngine(t)

	res := e.VaultEstimateGasAndApproval(context.Background(), m, types.VaultWithdraw, types.MustAmount("10"))
	require.Empty(t, res.Error)
	assert.True(t, res.IsApproved)
	assert.Equal(t, types.Gas{160_000}, res.EstimatedGas)
	assert.Equal(t, 0, m.Calls("vault.withdraw.isApproved"))

	res = e.VaultEstimateGasAndApproval(context.Background(), m, types.VaultDeposit, types.MustAmount("10"))
	require.Empty(t, res.Error)
	assert.False(t, res.IsApproved)
	assert.Equal(t, types.Gas{46_000}, res.EstimatedGas)
}

func TestMaxLeverage(t *testing.T) {
	m := loadMarket(t, mintID, nil)
	res := newEngine(t).MaxLeverage(context.Background(), m, 4)
	require.Empty(t, res.Error)
	assert.True(t, res.MaxLeverage.GreaterThan(decimal.NewFromInt(1)))
	assert.Equal(t, 1, m.Calls("leverageV2.maxLeverage"))
}

func TestQuoteMetrics(t *testing.T) {
	qm := metrics.NewQuoteMetrics("test", prometheus.NewRegistry())
	m := loadMarket(t, lendID, map[string]string{"createLoan.bands": "bands down"})
	e := newEngine(t, WithMetrics(qm))

	e.CreateLoanDetail(context.Background(), m, loanInput("1000", "500", 10))
	e.MaxRecv(context.Background(), m, types.ActionCreateLoan, loanInput("1000", "", 10))

	assert.Equal(t, float64(1), testutil.ToFloat64(qm.Requests.WithLabelValues("createLoan", "detail", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(qm.Requests.WithLabelValues("createLoan", "maxRecv", "success")))
}

func TestActiveKeyIsDeterministic(t *testing.T) {
	m := loadMarket(t, lendID, nil)
	e := newEngine(t)
	a := e.MaxRecv(context.Background(), m, types.ActionCreateLoan, loanInput("1000", "", 10))
	b := e.MaxRecv(context.Background(), m, types.ActionCreateLoan, loanInput("1000", "", 10))
	c := e.MaxRecv(context.Background(), m, types.ActionCreateLoan, loanInput("1001", "", 10))
	assert.Equal(t, a.ActiveKey, b.ActiveKey)
	assert.NotEqual(t, a.ActiveKey, c.ActiveKey)
}
