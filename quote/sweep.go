package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	llmath "github.com/michaelpento.lv/llamalend/utils/math"
)

// LiqRanges sweeps a create-loan over every band count of the market
func (e *Engine) LiqRanges(ctx context.Context, m sdk.Market, in Input) SweepResult {
	key := activeKey(m, string(types.ActionCreateLoan), "liqRanges", in.parts()...)
	return e.sweep(ctx, m, key, "liqRanges", m.Sweep(), in, in.Collateral.IsSet())
}

// LiqRangesLeverage sweeps a leveraged create-loan over every band count
func (e *Engine) LiqRangesLeverage(ctx context.Context, m sdk.Market, in Input) SweepResult {
	key := activeKey(m, string(types.ActionCreateLoan), "liqRanges"+kindLeverage, in.parts()...)
	var sw sdk.RangeSweeper
	if lev := sdk.PreferredLeverage(m); lev != nil {
		sw = lev.Sweep()
	}
	return e.sweep(ctx, m, key, "liqRanges"+kindLeverage, sw, in, in.haveValues())
}

// sweep calls each all-ranges endpoint once and zips the per-n maps into
// one entry per band count. A failed endpoint leaves its fields zeroed
// without dropping any entry. Without collateral no endpoint is called and
// every entry is a placeholder.
func (e *Engine) sweep(ctx context.Context, m sdk.Market, key, kind string, sw sdk.RangeSweeper, in Input, haveCollateral bool) (res SweepResult) {
	var errMsg string
	start := time.Now()
	res.ActiveKey = key
	defer e.observe(string(types.ActionCreateLoan), kind, start, &errMsg)

	p := in.Params()
	var (
		s       pool.Settler
		maxRecv = &pool.Result[map[int]decimal.Decimal]{}
		bands   = &pool.Result[map[int]types.RawBands]{}
		prices  = &pool.Result[map[int][]decimal.Decimal]{}
	)
	switch {
	case !haveCollateral:
		// placeholders only
	case sw == nil:
		maxRecv.Err, bands.Err, prices.Err = ErrNoLeverage, ErrNoLeverage, ErrNoLeverage
	default:
		maxRecv = pool.Settle(&s, ctx, func(ctx context.Context) (map[int]decimal.Decimal, error) {
			return sw.MaxRecvAllRanges(ctx, p)
		})
		bands = pool.Settle(&s, ctx, func(ctx context.Context) (map[int]types.RawBands, error) {
			return sw.BandsAllRanges(ctx, p)
		})
		prices = pool.Settle(&s, ctx, func(ctx context.Context) (map[int][]decimal.Decimal, error) {
			return sw.PricesAllRanges(ctx, p)
		})
		s.Wait()
	}

	if err := pool.FirstErr(maxRecv, bands, prices); err != nil {
		errMsg = errorText(err)
		e.logger.Warn("Liquidation range sweep incomplete",
			zap.String("market", m.Info().ID),
			zap.NamedError("maxRecv", maxRecv.Err),
			zap.NamedError("bands", bands.Err),
			zap.NamedError("prices", prices.Err))
	}

	maxRecvErr := errorText(maxRecv.Err)
	counts := m.Info().BandCounts()
	res.LiqRanges = make([]types.LiqRange, 0, len(counts))
	for i, n := range counts {
		r := types.LiqRange{
			N:            n,
			SliderIdx:    i,
			MaxRecv:      decimal.Zero,
			MaxRecvError: maxRecvErr,
			Bands:        types.BandRange{0, 0},
			Prices:       []decimal.Decimal{},
		}
		if v, ok := maxRecv.Value[n]; ok {
			r.MaxRecv = v
		}
		if b, ok := bands.Value[n]; ok {
			r.Bands = llmath.DisplayBands(b)
		}
		if pr, ok := prices.Value[n]; ok && len(pr) == 2 {
			r.Prices = []decimal.Decimal{pr[1], pr[0]}
		}
		res.LiqRanges = append(res.LiqRanges, r)
	}
	return res
}
