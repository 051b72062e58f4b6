package fixture

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

const leverageGas = 400_000

// swapFee is the routing cost applied to every leveraged swap
var swapFee = decimal.RequireFromString("0.003")

func (m *Market) Leverage(version types.LeverageVersion) sdk.Leverage {
	for _, v := range m.spec.Leverage {
		if v == version.String() {
			return &leverage{m: m, version: version}
		}
	}
	return nil
}

type leverage struct {
	m       *Market
	version types.LeverageVersion
}

func (l *leverage) prefix() string {
	if l.version == types.LeverageV2 {
		return "leverageV2"
	}
	return "leverage"
}

func (l *leverage) Version() types.LeverageVersion {
	return l.version
}

// MaxLeverage is the geometric limit of re-borrowing at the market LTV over n bands
func (l *leverage) MaxLeverage(ctx context.Context, n int) (decimal.Decimal, error) {
	if err := l.m.call(l.prefix() + ".maxLeverage"); err != nil {
		return decimal.Zero, err
	}
	return l.m.maxLeverage(n)
}

func (m *Market) maxLeverage(n int) (decimal.Decimal, error) {
	ltv := m.maxDebt(decimal.NewFromInt(1), n)
	if price := m.spec.OraclePrice.Decimal; price.IsPositive() {
		ltv = ltv.Div(price)
	}
	one := decimal.NewFromInt(1)
	if ltv.GreaterThanOrEqual(one) {
		return decimal.Zero, fmt.Errorf("loan-to-value %s leaves leverage unbounded", ltv)
	}
	return one.Div(one.Sub(ltv)).Round(4), nil
}

func (l *leverage) Family(action types.Action) sdk.LeverageFamily {
	switch action {
	case types.ActionCreateLoan, types.ActionBorrowMore, types.ActionRepay:
		return &leverageFamily{loanFamily: &loanFamily{m: l.m, action: action, prefix: l.prefix() + "." + string(action)}}
	default:
		return nil
	}
}

func (l *leverage) Sweep() sdk.RangeSweeper {
	return &sweeper{family: &leverageFamily{loanFamily: &loanFamily{m: l.m, action: types.ActionCreateLoan, prefix: l.prefix() + ".sweep"}}}
}

type leverageFamily struct {
	*loanFamily
}

func (f *leverageFamily) expectedCollateral(p sdk.LoanParams) types.ExpectedCollateral {
	price := f.m.spec.OraclePrice.Decimal
	out := types.ExpectedCollateral{UserCollateral: p.Collateral, Leverage: decimal.Zero}
	if !price.IsPositive() {
		return out
	}
	keep := decimal.NewFromInt(1).Sub(swapFee)
	out.CollateralFromUserBorrowed = p.Borrowed.Div(price).Mul(keep).Round(18)
	out.CollateralFromDebt = p.Debt.Div(price).Mul(keep).Round(18)
	out.TotalCollateral = p.Collateral.Add(out.CollateralFromUserBorrowed).Add(out.CollateralFromDebt)
	out.AvgPrice = price.Mul(decimal.NewFromInt(1).Add(swapFee)).Round(18)
	if base := p.Collateral.Add(out.CollateralFromUserBorrowed); base.IsPositive() {
		out.Leverage = out.TotalCollateral.Div(base).Round(4)
	}
	return out
}

func (f *leverageFamily) expectedBorrowed(p sdk.LoanParams) types.ExpectedBorrowed {
	price := f.m.spec.OraclePrice.Decimal
	keep := decimal.NewFromInt(1).Sub(swapFee)
	out := types.ExpectedBorrowed{
		BorrowedFromStateCollateral: p.StateCollateral.Mul(price).Mul(keep).Round(18),
		BorrowedFromUserCollateral:  p.Collateral.Mul(price).Mul(keep).Round(18),
		UserBorrowed:                p.Borrowed,
		AvgPrice:                    price.Mul(keep).Round(18),
	}
	out.TotalBorrowed = out.BorrowedFromStateCollateral.Add(out.BorrowedFromUserCollateral).Add(out.UserBorrowed)
	return out
}

func (f *leverageFamily) position(p sdk.LoanParams) (decimal.Decimal, decimal.Decimal, int) {
	switch f.action {
	case types.ActionCreateLoan:
		return f.expectedCollateral(p).TotalCollateral, p.Debt, p.N
	case types.ActionBorrowMore:
		s := f.state(p)
		return s.Collateral.Add(f.expectedCollateral(p).TotalCollateral), s.Debt.Add(p.Debt), s.N
	case types.ActionRepay:
		s := f.state(p)
		debt := s.Debt.Sub(f.expectedBorrowed(p).TotalBorrowed)
		if debt.IsNegative() {
			debt = decimal.Zero
		}
		return s.Collateral.Sub(p.StateCollateral), debt, s.N
	default:
		return decimal.Zero, decimal.Zero, 0
	}
}

func (f *leverageFamily) positionFor(p sdk.LoanParams) (decimal.Decimal, decimal.Decimal) {
	return f.expectedCollateral(p).TotalCollateral, p.Debt
}

func (f *leverageFamily) maxFor(p sdk.LoanParams) decimal.Decimal {
	return f.maxRecvLeverage(p).MaxDebt
}

func (f *leverageFamily) maxRecvLeverage(p sdk.LoanParams) types.MaxRecvLeverage {
	price := f.m.spec.OraclePrice.Decimal
	own := p.Collateral
	if price.IsPositive() {
		own = own.Add(p.Borrowed.Div(price))
	}
	maxLev, err := f.m.maxLeverage(p.N)
	if err != nil {
		maxLev = decimal.NewFromInt(1)
	}
	total := own.Mul(maxLev).Round(18)
	fromDebt := total.Sub(own)
	return types.MaxRecvLeverage{
		MaxDebt:                    fromDebt.Mul(price).Round(18),
		MaxTotalCollateral:         total,
		UserCollateral:             p.Collateral,
		CollateralFromUserBorrowed: own.Sub(p.Collateral),
		CollateralFromMaxDebt:      fromDebt,
		AvgPrice:                   price,
	}
}

func (f *leverageFamily) MaxRecv(ctx context.Context, p sdk.LoanParams) (decimal.Decimal, error) {
	r, err := f.MaxRecvLeverage(ctx, p)
	if err != nil {
		return decimal.Zero, err
	}
	return r.MaxDebt, nil
}

func (f *leverageFamily) MaxRecvLeverage(ctx context.Context, p sdk.LoanParams) (types.MaxRecvLeverage, error) {
	if err := f.m.call(f.key("maxRecv")); err != nil {
		return types.MaxRecvLeverage{}, err
	}
	if f.action == types.ActionBorrowMore {
		s := f.state(p)
		p.Collateral = p.Collateral.Add(s.Collateral)
		p.N = s.N
		r := f.maxRecvLeverage(p)
		r.MaxDebt = r.MaxDebt.Sub(s.Debt)
		return r, nil
	}
	return f.maxRecvLeverage(p), nil
}

func (f *leverageFamily) ExpectedCollateral(ctx context.Context, p sdk.LoanParams) (types.ExpectedCollateral, error) {
	if err := f.m.call(f.key("expectedCollateral")); err != nil {
		return types.ExpectedCollateral{}, err
	}
	if f.action == types.ActionRepay {
		return types.ExpectedCollateral{}, sdk.ErrUnsupported
	}
	return f.expectedCollateral(p), nil
}

func (f *leverageFamily) ExpectedBorrowed(ctx context.Context, p sdk.LoanParams) (types.ExpectedBorrowed, error) {
	if err := f.m.call(f.key("expectedBorrowed")); err != nil {
		return types.ExpectedBorrowed{}, err
	}
	if f.action != types.ActionRepay {
		return types.ExpectedBorrowed{}, sdk.ErrUnsupported
	}
	return f.expectedBorrowed(p), nil
}

func (f *leverageFamily) RouteImage(ctx context.Context, p sdk.LoanParams) (string, error) {
	if err := f.m.call(f.key("routeImage")); err != nil {
		return "", err
	}
	return fmt.Sprintf(`<svg data-route="%s:%s>%s"/>`, f.m.spec.ID, f.m.info.BorrowedToken.Symbol, f.m.info.CollateralToken.Symbol), nil
}

// PriceImpact is the swapped amount as a percentage of AMM liquidity
func (f *leverageFamily) PriceImpact(ctx context.Context, p sdk.LoanParams) (decimal.Decimal, error) {
	if err := f.m.call(f.key("priceImpact")); err != nil {
		return decimal.Zero, err
	}
	amm := f.m.spec.AmmBalances
	liquidity := amm.Borrowed.Add(amm.Collateral.Mul(f.m.spec.OraclePrice.Decimal))
	if !liquidity.IsPositive() {
		return decimal.Zero, nil
	}
	swapped := p.Borrowed.Add(p.Debt)
	if f.action == types.ActionRepay {
		swapped = p.StateCollateral.Add(p.Collateral).Mul(f.m.spec.OraclePrice.Decimal)
	}
	return swapped.Div(liquidity).Mul(hundred).Round(4), nil
}

func (f *leverageFamily) IsFull(ctx context.Context, p sdk.LoanParams) (bool, error) {
	if err := f.m.call(f.key("isFull")); err != nil {
		return false, err
	}
	return f.expectedBorrowed(p).TotalBorrowed.GreaterThanOrEqual(f.state(p).Debt), nil
}

func (f *leverageFamily) IsAvailable(ctx context.Context, p sdk.LoanParams) (bool, error) {
	if err := f.m.call(f.key("isAvailable")); err != nil {
		return false, err
	}
	return f.m.spec.AmmBalances.Borrowed.IsPositive(), nil
}

func (f *leverageFamily) Health(ctx context.Context, p sdk.LoanParams, full bool) (decimal.Decimal, error) {
	if err := f.m.call(f.key(healthKey(full))); err != nil {
		return decimal.Zero, err
	}
	c, d, _ := f.position(p)
	return f.m.health(c, d, full), nil
}

func (f *leverageFamily) Bands(ctx context.Context, p sdk.LoanParams) (types.RawBands, error) {
	if err := f.m.call(f.key("bands")); err != nil {
		return types.RawBands{}, err
	}
	c, d, n := f.position(p)
	return f.m.bands(c, d, n), nil
}

func (f *leverageFamily) Prices(ctx context.Context, p sdk.LoanParams) ([]decimal.Decimal, error) {
	if err := f.m.call(f.key("prices")); err != nil {
		return nil, err
	}
	c, d, n := f.position(p)
	return f.m.prices(f.m.bands(c, d, n)), nil
}

func (f *leverageFamily) Approve(ctx context.Context, p sdk.LoanParams) ([]common.Hash, error) {
	if err := f.m.call(f.key("approve")); err != nil {
		return nil, err
	}
	return []common.Hash{
		f.m.submit(f.key("approve") + ".collateral"),
		f.m.submit(f.key("approve") + ".borrowed"),
	}, nil
}

func (f *leverageFamily) EstimateGas(ctx context.Context, p sdk.LoanParams) (types.Gas, error) {
	if err := f.m.call(f.key("estimateGas")); err != nil {
		return nil, err
	}
	return types.Gas{actionGas[f.action] + leverageGas}, nil
}

func (f *leverageFamily) EstimateApproveGas(ctx context.Context, p sdk.LoanParams) (types.Gas, error) {
	if err := f.m.call(f.key("estimateApproveGas")); err != nil {
		return nil, err
	}
	return types.Gas{approveGas, approveGas}, nil
}
