package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	llmath "github.com/michaelpento.lv/llamalend/utils/math"
)

// MaxRecv returns the most the user can borrow in a create-loan or
// borrow-more action. A negative borrow-more headroom is reported as zero.
func (e *Engine) MaxRecv(ctx context.Context, m sdk.Market, action types.Action, in Input) (res MaxRecvResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "maxRecv", in.parts()...)
	res.MaxRecv = decimal.Zero
	defer e.observe(string(action), "maxRecv", start, &res.Error)

	f, err := family(m, action)
	if err == nil {
		res.MaxRecv, err = f.MaxRecv(ctx, in.Params())
	}
	if err != nil {
		e.warn("Failed to compute max receivable", m, string(action), err)
		res.MaxRecv = decimal.Zero
		res.Error = types.ErrorMessage(err, types.ErrCodeMaxAmount)
		return res
	}
	if action == types.ActionBorrowMore && res.MaxRecv.IsNegative() {
		res.MaxRecv = decimal.Zero
	}
	return res
}

// CreateLoanDetail projects a new loan
func (e *Engine) CreateLoanDetail(ctx context.Context, m sdk.Market, in Input) (res DetailResult) {
	return e.loanDetail(ctx, m, types.ActionCreateLoan, in, in.haveValues() && in.Debt.IsSet(), in.Debt.OrZero())
}

// BorrowMoreDetail projects a loan after borrowing more
func (e *Engine) BorrowMoreDetail(ctx context.Context, m sdk.Market, in Input) (res DetailResult) {
	return e.loanDetail(ctx, m, types.ActionBorrowMore, in, in.Debt.IsSet(), in.Debt.OrZero())
}

// RepayDetail projects a loan after a repay. A full repay closes the
// position, so health is left unset and bands and prices are placeholders.
func (e *Engine) RepayDetail(ctx context.Context, m sdk.Market, in Input) DetailResult {
	if !in.IsFullRepay {
		return e.loanDetail(ctx, m, types.ActionRepay, in, in.Debt.IsSet(), in.Debt.OrZero().Neg())
	}

	start := time.Now()
	res := DetailResult{
		ActiveKey: activeKey(m, string(types.ActionFullRepay), "detail", in.parts()...),
		LoanQuote: types.LoanQuote{Bands: types.BandRange{0, 0}, Prices: []decimal.Decimal{}},
	}
	defer e.observe(string(types.ActionFullRepay), "detail", start, &res.Error)

	state, err := m.User().State(ctx, in.User)
	if err != nil {
		e.warn("Failed to read loan state", m, string(types.ActionFullRepay), err)
		res.Error = errorText(err)
		return res
	}
	rates, err := m.Stats().FutureRates(ctx, decimal.Zero, state.Debt.Neg())
	if err != nil {
		e.warn("Failed to project rates", m, string(types.ActionFullRepay), err)
		res.Error = errorText(err)
		return res
	}
	res.FutureRates = &rates
	return res
}

// loanDetail runs every projection of a plain family independently. The
// first failure in priority order becomes the quote's error. Without the
// amounts the action needs, only the placeholders are returned.
func (e *Engine) loanDetail(ctx context.Context, m sdk.Market, action types.Action, in Input, entered bool, dDebt decimal.Decimal) (res DetailResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "detail", in.parts()...)
	res.Bands = types.BandRange{0, 0}
	res.Prices = []decimal.Decimal{}
	defer e.observe(string(action), "detail", start, &res.Error)

	if !entered {
		return res
	}
	f, err := family(m, action)
	if err != nil {
		res.Error = errorText(err)
		return res
	}
	p := in.Params()

	var s pool.Settler
	healthFull := pool.Settle(&s, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return f.Health(ctx, p, true)
	})
	healthNotFull := pool.Settle(&s, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return f.Health(ctx, p, false)
	})
	futureRates := pool.Settle(&s, ctx, func(ctx context.Context) (types.Rates, error) {
		return m.Stats().FutureRates(ctx, decimal.Zero, dDebt)
	})
	bands := pool.Settle(&s, ctx, func(ctx context.Context) (types.RawBands, error) {
		return f.Bands(ctx, p)
	})
	prices := pool.Settle(&s, ctx, func(ctx context.Context) ([]decimal.Decimal, error) {
		return f.Prices(ctx, p)
	})
	s.Wait()

	res.HealthFull = settledAmount(healthFull)
	res.HealthNotFull = settledAmount(healthNotFull)
	res.FutureRates = settledRates(futureRates)
	if bands.Ok() {
		res.Bands = llmath.DisplayBands(bands.Value)
	}
	if prices.Ok() && prices.Value != nil {
		res.Prices = prices.Value
	}

	if err := pool.FirstErr(futureRates, bands, healthFull, healthNotFull, prices); err != nil {
		e.warn("Failed to compute loan detail", m, string(action), err)
		res.Error = errorText(err)
	}
	return res
}

// AddCollateralDetail projects a loan after adding collateral
func (e *Engine) AddCollateralDetail(ctx context.Context, m sdk.Market, in Input) DetailResult {
	return e.collateralDetail(ctx, m, types.ActionAddCollateral, in)
}

// RemoveCollateralDetail projects a loan after removing collateral
func (e *Engine) RemoveCollateralDetail(ctx context.Context, m sdk.Market, in Input) DetailResult {
	return e.collateralDetail(ctx, m, types.ActionRemoveCollateral, in)
}

// collateralDetail is all-or-nothing: collateral changes do not move rates
// and a partial projection is not shown.
func (e *Engine) collateralDetail(ctx context.Context, m sdk.Market, action types.Action, in Input) (res DetailResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "detail", in.parts()...)
	defer e.observe(string(action), "detail", start, &res.Error)

	if !in.Collateral.IsSet() {
		res.LoanQuote = types.LoanQuote{Bands: types.BandRange{0, 0}, Prices: []decimal.Decimal{}}
		return res
	}

	var (
		q   types.LoanQuote
		raw types.RawBands
	)
	f, err := family(m, action)
	if err == nil {
		p := in.Params()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			v, err := f.Health(gctx, p, true)
			q.HealthFull = types.Some(v)
			return err
		})
		g.Go(func() error {
			v, err := f.Health(gctx, p, false)
			q.HealthNotFull = types.Some(v)
			return err
		})
		g.Go(func() (err error) {
			raw, err = f.Bands(gctx, p)
			return err
		})
		g.Go(func() (err error) {
			q.Prices, err = f.Prices(gctx, p)
			return err
		})
		err = g.Wait()
	}
	if err != nil {
		e.warn("Failed to compute collateral detail", m, string(action), err)
		res.LoanQuote = types.LoanQuote{Bands: types.BandRange{0, 0}, Prices: []decimal.Decimal{}}
		res.Error = types.ErrorMessage(err, types.ErrCodeDetails)
		return res
	}

	q.Bands = llmath.DisplayBands(raw)
	res.LoanQuote = q
	return res
}

// MaxRemovable returns the collateral the user can withdraw while keeping
// the loan open. Negative results are reported as zero.
func (e *Engine) MaxRemovable(ctx context.Context, m sdk.Market, in Input) (res MaxRecvResult) {
	action := types.ActionRemoveCollateral
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "maxRemovable", in.parts()...)
	res.MaxRecv = decimal.Zero
	defer e.observe(string(action), "maxRemovable", start, &res.Error)

	f, err := family(m, action)
	if err == nil {
		res.MaxRecv, err = f.MaxRecv(ctx, in.Params())
	}
	if err != nil {
		e.warn("Failed to compute max removable", m, string(action), err)
		res.MaxRecv = decimal.Zero
		res.Error = types.ErrorMessage(err, types.ErrCodeMaxRemovable)
		return res
	}
	if !res.MaxRecv.IsPositive() {
		res.MaxRecv = decimal.Zero
	}
	return res
}

// SelfLiquidateDetail returns the borrowed tokens the user must add to
// close a loan in soft liquidation, with the rates after closing it
func (e *Engine) SelfLiquidateDetail(ctx context.Context, m sdk.Market, in Input) (res SelfLiquidateResult) {
	action := types.ActionSelfLiquidate
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "detail", in.parts()...)
	res.TokensToLiquidate = decimal.Zero
	defer e.observe(string(action), "detail", start, &res.Error)

	f, err := family(m, action)
	if err == nil {
		res.TokensToLiquidate, err = f.MaxRecv(ctx, in.Params())
	}
	if err != nil {
		e.warn("Failed to compute tokens to liquidate", m, string(action), err)
		res.TokensToLiquidate = decimal.Zero
		res.Error = types.ErrorMessage(err, types.ErrCodeAPI)
		return res
	}

	if res.TokensToLiquidate.IsPositive() {
		rates, err := m.Stats().FutureRates(ctx, decimal.Zero, res.TokensToLiquidate.Neg())
		if err != nil {
			e.warn("Failed to project rates", m, string(action), err)
			res.Error = types.ErrorMessage(err, types.ErrCodeAPI)
			return res
		}
		res.FutureRates = &rates
	}
	return res
}
