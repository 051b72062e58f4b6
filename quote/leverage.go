package quote

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	llmath "github.com/michaelpento.lv/llamalend/utils/math"
)

const kindLeverage = "leverage"

// MaxRecvLeverage returns the leveraged max-receive breakdown of a create
// or borrow-more action. A negative borrow-more headroom is reported as zero.
func (e *Engine) MaxRecvLeverage(ctx context.Context, m sdk.Market, action types.Action, in Input) (res MaxRecvLeverageResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "maxRecvLeverage", in.parts()...)
	defer e.observe(string(action), "maxRecvLeverage", start, &res.Error)

	f, err := leverageFamily(m, action)
	if err == nil {
		res.MaxRecvLeverage, err = f.MaxRecvLeverage(ctx, in.Params())
	}
	if err != nil {
		e.warn("Failed to compute leveraged max receivable", m, string(action), err)
		res.MaxRecvLeverage = types.MaxRecvLeverage{}
		res.Error = types.ErrorMessage(err, types.ErrCodeMaxAmount)
		return res
	}
	if action == types.ActionBorrowMore && res.MaxDebt.IsNegative() {
		res.MaxDebt = decimal.Zero
	}
	return res
}

// CreateLoanDetailLeverage projects a new leveraged loan
func (e *Engine) CreateLoanDetailLeverage(ctx context.Context, m sdk.Market, in Input) LeverageDetailResult {
	return e.expectedCollateralDetail(ctx, m, types.ActionCreateLoan, in, in.haveValues() && in.Debt.IsSet())
}

// BorrowMoreDetailLeverage projects a loan after a leveraged borrow-more
func (e *Engine) BorrowMoreDetailLeverage(ctx context.Context, m sdk.Market, in Input) LeverageDetailResult {
	return e.expectedCollateralDetail(ctx, m, types.ActionBorrowMore, in, in.Debt.IsSet())
}

func (e *Engine) expectedCollateralDetail(ctx context.Context, m sdk.Market, action types.Action, in Input, entered bool) (res LeverageDetailResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "detail"+kindLeverage, in.parts()...)
	res.LeverageQuote = emptyLeverageQuote()
	defer e.observe(string(action), "detail"+kindLeverage, start, &res.Error)

	if !entered {
		return res
	}
	f, err := leverageFamily(m, action)
	if err != nil {
		res.Error = errorText(err)
		return res
	}
	p := in.Params()

	expected, err := f.ExpectedCollateral(ctx, p)
	if err != nil {
		e.warn("Failed to compute expected collateral", m, string(action), err)
		res.Error = errorText(err)
		return res
	}
	res.ExpectedCollateral = &expected

	proj := e.project(ctx, m, f, p, p.Debt, true)
	proj.apply(&res.LeverageQuote, in.Slippage)
	if err := proj.firstErr(); err != nil {
		e.warn("Failed to compute leveraged detail", m, string(action), err)
		res.Error = errorText(err)
	}
	return res
}

// RepayDetailLeverage projects a loan after repaying with collateral swapped
// to the borrowed token. When the swap covers the whole debt the position
// closes: health is unset and bands and prices are placeholders.
func (e *Engine) RepayDetailLeverage(ctx context.Context, m sdk.Market, in Input) (res RepayLeverageResult) {
	action := types.ActionRepay
	start := time.Now()
	res.ActiveKey = activeKey(m, string(action), "detail"+kindLeverage, in.parts()...)
	res.LeverageQuote = emptyLeverageQuote()
	defer e.observe(string(action), "detail"+kindLeverage, start, &res.Error)

	if !in.haveValues() && !in.StateCollateral.IsSet() {
		return res
	}
	f, err := leverageFamily(m, action)
	if err != nil {
		res.Error = errorText(err)
		return res
	}
	p := in.Params()

	expected, err := f.ExpectedBorrowed(ctx, p)
	if err != nil {
		e.warn("Failed to compute expected borrowed", m, string(action), err)
		res.Error = errorText(err)
		return res
	}
	res.ExpectedBorrowed = &expected

	if res.IsFullRepay, err = f.IsFull(ctx, p); err != nil {
		e.warn("Failed to check full repay", m, string(action), err)
		res.Error = errorText(err)
		return res
	}

	repaid := expected.TotalBorrowed
	if res.IsFullRepay {
		state, err := m.User().State(ctx, p.User)
		if err != nil {
			e.warn("Failed to read loan state", m, string(action), err)
			res.Error = errorText(err)
			return res
		}
		repaid = state.Debt
	}

	var s pool.Settler
	available := pool.Settle(&s, ctx, func(ctx context.Context) (bool, error) {
		return f.IsAvailable(ctx, p)
	})
	proj := e.project(ctx, m, f, p, repaid.Neg(), !res.IsFullRepay)
	s.Wait()

	proj.apply(&res.LeverageQuote, in.Slippage)
	res.IsAvailable = available.Or(false)

	if err := pool.FirstErr(append(proj.ordered(), available)...); err != nil {
		e.warn("Failed to compute leveraged repay detail", m, string(action), err)
		res.Error = errorText(err)
	}
	return res
}

func emptyLeverageQuote() types.LeverageQuote {
	return types.LeverageQuote{
		LoanQuote:   types.LoanQuote{Bands: types.BandRange{0, 0}, Prices: []decimal.Decimal{}},
		PriceImpact: types.NotAvailable,
	}
}

// projection holds the settled calls shared by every leveraged detail.
// Position calls are nil when the position is being closed.
type projection struct {
	healthFull    *pool.Result[decimal.Decimal]
	healthNotFull *pool.Result[decimal.Decimal]
	futureRates   *pool.Result[types.Rates]
	bands         *pool.Result[types.RawBands]
	prices        *pool.Result[[]decimal.Decimal]
	priceImpact   *pool.Result[decimal.Decimal]
	routeImage    *pool.Result[string]
}

// project issues the leveraged projections concurrently and waits for all
// of them
func (e *Engine) project(ctx context.Context, m sdk.Market, f sdk.LeverageFamily, p sdk.LoanParams, dDebt decimal.Decimal, withPosition bool) *projection {
	var (
		s   pool.Settler
		out projection
	)
	if withPosition {
		out.healthFull = pool.Settle(&s, ctx, func(ctx context.Context) (decimal.Decimal, error) {
			return f.Health(ctx, p, true)
		})
		out.healthNotFull = pool.Settle(&s, ctx, func(ctx context.Context) (decimal.Decimal, error) {
			return f.Health(ctx, p, false)
		})
		out.bands = pool.Settle(&s, ctx, func(ctx context.Context) (types.RawBands, error) {
			return f.Bands(ctx, p)
		})
		out.prices = pool.Settle(&s, ctx, func(ctx context.Context) ([]decimal.Decimal, error) {
			return f.Prices(ctx, p)
		})
	}
	out.futureRates = pool.Settle(&s, ctx, func(ctx context.Context) (types.Rates, error) {
		return m.Stats().FutureRates(ctx, decimal.Zero, dDebt)
	})
	out.priceImpact = pool.Settle(&s, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return f.PriceImpact(ctx, p)
	})
	out.routeImage = pool.Settle(&s, ctx, func(ctx context.Context) (string, error) {
		return f.RouteImage(ctx, p)
	})
	s.Wait()
	return &out
}

func (pr *projection) apply(q *types.LeverageQuote, slippage decimal.Decimal) {
	if pr.healthFull != nil {
		q.HealthFull = settledAmount(pr.healthFull)
		q.HealthNotFull = settledAmount(pr.healthNotFull)
		if pr.bands.Ok() {
			q.Bands = llmath.DisplayBands(pr.bands.Value)
		}
		if pr.prices.Ok() && pr.prices.Value != nil {
			q.Prices = pr.prices.Value
		}
	}
	q.FutureRates = settledRates(pr.futureRates)
	q.RouteImage = pr.routeImage.Or("")
	if pr.priceImpact.Ok() {
		q.PriceImpact = types.NewPriceImpact(pr.priceImpact.Value)
	}
	q.IsHighPriceImpact = q.PriceImpact.IsHigh(slippage)
}

// ordered lists the calls by error priority
func (pr *projection) ordered() []pool.Failer {
	out := make([]pool.Failer, 0, 7)
	if pr.healthFull != nil {
		out = append(out, pr.healthFull, pr.healthNotFull)
	}
	out = append(out, pr.futureRates)
	if pr.bands != nil {
		out = append(out, pr.bands, pr.prices)
	}
	return append(out, pr.priceImpact, pr.routeImage)
}

func (pr *projection) firstErr() error {
	return pool.FirstErr(pr.ordered()...)
}

// MaxLeverage returns the maximum leverage for a band count
func (e *Engine) MaxLeverage(ctx context.Context, m sdk.Market, n int) (res MaxLeverageResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, kindLeverage, "maxLeverage", strconv.Itoa(n))
	res.N = n
	res.MaxLeverage = decimal.Zero
	defer e.observe(kindLeverage, "maxLeverage", start, &res.Error)

	lev := sdk.PreferredLeverage(m)
	if lev == nil {
		res.Error = types.ErrorMessage(ErrNoLeverage, types.ErrCodeAPI)
		return res
	}
	v, err := lev.MaxLeverage(ctx, n)
	if err != nil {
		e.warn("Failed to compute max leverage", m, kindLeverage, err)
		res.Error = types.ErrorMessage(err, types.ErrCodeAPI)
		return res
	}
	res.MaxLeverage = v
	return res
}
