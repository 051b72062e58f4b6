package fixture

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

const approveGas = 46_000

var actionGas = map[types.Action]uint64{
	types.ActionCreateLoan:       600_000,
	types.ActionBorrowMore:       450_000,
	types.ActionRepay:            400_000,
	types.ActionFullRepay:        420_000,
	types.ActionAddCollateral:    250_000,
	types.ActionRemoveCollateral: 300_000,
	types.ActionSelfLiquidate:    500_000,
}

func (m *Market) Family(action types.Action) sdk.LoanFamily {
	if _, ok := actionGas[action]; !ok {
		return nil
	}
	return &loanFamily{m: m, action: action, prefix: string(action)}
}

func (m *Market) Sweep() sdk.RangeSweeper {
	return &sweeper{family: &loanFamily{m: m, action: types.ActionCreateLoan, prefix: "sweep"}}
}

// loanFamily serves the non-leveraged method family of one action
type loanFamily struct {
	m      *Market
	action types.Action
	prefix string
}

func (f *loanFamily) key(method string) string {
	return f.prefix + "." + method
}

func (f *loanFamily) state(p sdk.LoanParams) types.UserState {
	spec, _ := f.m.user(p.User)
	return types.UserState{Collateral: spec.Collateral.Decimal, Borrowed: spec.Borrowed.Decimal, Debt: spec.Debt.Decimal, N: spec.N}
}

// position is the collateral, debt and band count after the action
func (f *loanFamily) position(p sdk.LoanParams) (decimal.Decimal, decimal.Decimal, int) {
	if f.action == types.ActionCreateLoan {
		return p.Collateral, p.Debt, p.N
	}
	s := f.state(p)
	switch f.action {
	case types.ActionBorrowMore:
		return s.Collateral.Add(p.Collateral), s.Debt.Add(p.Debt), s.N
	case types.ActionRepay:
		return s.Collateral, s.Debt.Sub(p.Debt), s.N
	case types.ActionAddCollateral:
		return s.Collateral.Add(p.Collateral), s.Debt, s.N
	case types.ActionRemoveCollateral:
		return s.Collateral.Sub(p.Collateral), s.Debt, s.N
	default:
		return decimal.Zero, decimal.Zero, 0
	}
}

func (f *loanFamily) MaxRecv(ctx context.Context, p sdk.LoanParams) (decimal.Decimal, error) {
	if err := f.m.call(f.key("maxRecv")); err != nil {
		return decimal.Zero, err
	}
	s := f.state(p)
	switch f.action {
	case types.ActionCreateLoan:
		return f.m.maxDebt(p.Collateral, p.N), nil
	case types.ActionBorrowMore:
		return f.m.maxDebt(s.Collateral.Add(p.Collateral), s.N).Sub(s.Debt), nil
	case types.ActionRemoveCollateral:
		perUnit := f.m.maxDebt(decimal.NewFromInt(1), s.N)
		if !perUnit.IsPositive() {
			return decimal.Zero, nil
		}
		return s.Collateral.Sub(s.Debt.Div(perUnit)).Round(18), nil
	case types.ActionSelfLiquidate:
		owed := s.Debt.Sub(s.Borrowed)
		if owed.IsNegative() {
			return decimal.Zero, nil
		}
		return owed, nil
	case types.ActionRepay, types.ActionFullRepay:
		return s.Debt, nil
	default:
		return decimal.Zero, sdk.ErrUnsupported
	}
}

func (f *loanFamily) Health(ctx context.Context, p sdk.LoanParams, full bool) (decimal.Decimal, error) {
	if err := f.m.call(f.key(healthKey(full))); err != nil {
		return decimal.Zero, err
	}
	c, d, _ := f.position(p)
	return f.m.health(c, d, full), nil
}

func healthKey(full bool) string {
	if full {
		return "healthFull"
	}
	return "healthNotFull"
}

func (f *loanFamily) Bands(ctx context.Context, p sdk.LoanParams) (types.RawBands, error) {
	if err := f.m.call(f.key("bands")); err != nil {
		return types.RawBands{}, err
	}
	c, d, n := f.position(p)
	return f.m.bands(c, d, n), nil
}

func (f *loanFamily) Prices(ctx context.Context, p sdk.LoanParams) ([]decimal.Decimal, error) {
	if err := f.m.call(f.key("prices")); err != nil {
		return nil, err
	}
	c, d, n := f.position(p)
	return f.m.prices(f.m.bands(c, d, n)), nil
}

func (f *loanFamily) IsApproved(ctx context.Context, p sdk.LoanParams) (bool, error) {
	if err := f.m.call(f.key("isApproved")); err != nil {
		return false, err
	}
	return f.m.spec.Approved, nil
}

func (f *loanFamily) Approve(ctx context.Context, p sdk.LoanParams) ([]common.Hash, error) {
	if err := f.m.call(f.key("approve")); err != nil {
		return nil, err
	}
	return []common.Hash{f.m.submit(f.key("approve"))}, nil
}

func (f *loanFamily) Execute(ctx context.Context, p sdk.LoanParams) (common.Hash, error) {
	if err := f.m.call(f.key("execute")); err != nil {
		return common.Hash{}, err
	}
	return f.m.submit(f.prefix), nil
}

func (f *loanFamily) EstimateGas(ctx context.Context, p sdk.LoanParams) (types.Gas, error) {
	if err := f.m.call(f.key("estimateGas")); err != nil {
		return nil, err
	}
	return types.Gas{actionGas[f.action]}, nil
}

func (f *loanFamily) EstimateApproveGas(ctx context.Context, p sdk.LoanParams) (types.Gas, error) {
	if err := f.m.call(f.key("estimateApproveGas")); err != nil {
		return nil, err
	}
	return types.Gas{approveGas}, nil
}

// sweeper evaluates a family over every band count of the market
type sweeper struct {
	family interface {
		positionFor(p sdk.LoanParams) (decimal.Decimal, decimal.Decimal)
		maxFor(p sdk.LoanParams) decimal.Decimal
		market() *Market
		key(method string) string
	}
}

func (f *loanFamily) positionFor(p sdk.LoanParams) (decimal.Decimal, decimal.Decimal) {
	return p.Collateral, p.Debt
}

func (f *loanFamily) maxFor(p sdk.LoanParams) decimal.Decimal {
	return f.m.maxDebt(p.Collateral, p.N)
}

func (f *loanFamily) market() *Market {
	return f.m
}

func (s *sweeper) counts() []int {
	return s.family.market().info.BandCounts()
}

func (s *sweeper) MaxRecvAllRanges(ctx context.Context, p sdk.LoanParams) (map[int]decimal.Decimal, error) {
	if err := s.family.market().call(s.family.key("maxRecvAllRanges")); err != nil {
		return nil, err
	}
	out := make(map[int]decimal.Decimal)
	for _, n := range s.counts() {
		p.N = n
		out[n] = s.family.maxFor(p)
	}
	return out, nil
}

func (s *sweeper) BandsAllRanges(ctx context.Context, p sdk.LoanParams) (map[int]types.RawBands, error) {
	if err := s.family.market().call(s.family.key("bandsAllRanges")); err != nil {
		return nil, err
	}
	c, d := s.family.positionFor(p)
	out := make(map[int]types.RawBands)
	for _, n := range s.counts() {
		out[n] = s.family.market().bands(c, d, n)
	}
	return out, nil
}

func (s *sweeper) PricesAllRanges(ctx context.Context, p sdk.LoanParams) (map[int][]decimal.Decimal, error) {
	if err := s.family.market().call(s.family.key("pricesAllRanges")); err != nil {
		return nil, err
	}
	m := s.family.market()
	c, d := s.family.positionFor(p)
	out := make(map[int][]decimal.Decimal)
	for _, n := range s.counts() {
		out[n] = m.prices(m.bands(c, d, n))
	}
	return out, nil
}

func (f *loanFamily) String() string {
	return fmt.Sprintf("%s/%s", f.m.spec.ID, f.prefix)
}
