// Package market aggregates market-wide facts across many markets. Every
// fact group runs as its own bounded batch and a failure of one market is
// recorded in that market's entry without affecting any other.
package market

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils"
)

// Bands is the bands fact group of one market
type Bands struct {
	Balances        [2]decimal.Decimal `json:"balances"`
	MaxMinBands     [2]int             `json:"maxMinBands"`
	ActiveBand      int                `json:"activeBand"`
	LiquidationBand *int               `json:"liquidationBand"`
	// BandBalances holds the liquidation band's balances, nil without one
	BandBalances  *types.BandBalance `json:"bandBalances"`
	BandsBalances []types.ParsedBand `json:"bandsBalances"`
}

type Prices struct {
	OraclePrice     decimal.Decimal `json:"oraclePrice"`
	OraclePriceBand *int            `json:"oraclePriceBand"`
	Price           decimal.Decimal `json:"price"`
	BasePrice       decimal.Decimal `json:"basePrice"`
}

// Rewards are a market's gauge rewards. Other never holds entries with a
// non-positive APY.
type Rewards struct {
	Other []sdk.Reward       `json:"other"`
	Crv   [2]decimal.Decimal `json:"crv"`
}

// MaxLeverage is the maximum leverage of one band count
type MaxLeverage struct {
	N           int             `json:"n"`
	MaxLeverage decimal.Decimal `json:"maxLeverage"`
}

type Totals struct {
	TotalDebt decimal.Decimal `json:"totalDebt"`
}

// Service fetches market facts. It is stateless apart from its
// dependencies and safe for concurrent use.
type Service struct {
	pool   *pool.Pool
	useAPI bool
	logger *zap.Logger
}

// NewService creates a market service. useAPI is forwarded to every stats
// call that accepts it.
func NewService(p *pool.Pool, useAPI bool, logger *zap.Logger) *Service {
	if p == nil {
		p = pool.New(pool.DefaultConcurrency)
	}
	return &Service{
		pool:   p,
		useAPI: useAPI,
		logger: utils.OrNop(logger).Named("market"),
	}
}

func ids(markets []sdk.Market) []string {
	out := make([]string, 0, len(markets))
	for _, m := range markets {
		out = append(out, m.Info().ID)
	}
	return out
}

// collect runs fn for every market as one batch and keys the outcome by
// market id. Failed markets get fallback and a normalized error.
func collect[V any](ctx context.Context, s *Service, batch string, markets []sdk.Market, fallback V, fn func(context.Context, sdk.Market) (V, error)) map[string]pool.Entry[V] {
	results := pool.NewResults[string, V]()

	pool.For(s.pool, batch, markets).
		HandleError(func(err error, m sdk.Market) {
			id := m.Info().ID
			s.logger.Warn("Failed to fetch market facts",
				zap.String("batch", batch),
				zap.String("market", id),
				zap.Error(err))
			results.PutFallback(id, fallback, types.ErrorMessage(err, types.ErrCodeAPI))
		}).
		Process(ctx, func(ctx context.Context, m sdk.Market) error {
			v, err := fn(ctx, m)
			if err != nil {
				return err
			}
			results.Put(m.Info().ID, v)
			return nil
		})

	results.Ensure(ids(markets), fallback, types.ErrCodeAPI)
	return results.Map()
}

// FetchBands reads AMM balances, band bounds, the liquidation band's
// balances and the chart rows of every non-empty band
func (s *Service) FetchBands(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[*Bands] {
	return collect[*Bands](ctx, s, "bands", markets, nil, func(ctx context.Context, m sdk.Market) (*Bands, error) {
		var (
			balances      [2]decimal.Decimal
			info          sdk.BandsInfo
			bandsBalances types.BandsBalances
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			balances, err = m.Stats().Balances(gctx)
			return err
		})
		g.Go(func() (err error) {
			info, err = m.Stats().BandsInfo(gctx)
			return err
		})
		g.Go(func() (err error) {
			bandsBalances, err = m.Stats().BandsBalances(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		out := &Bands{
			Balances:        balances,
			MaxMinBands:     [2]int{info.MaxBand, info.MinBand},
			ActiveBand:      info.ActiveBand,
			LiquidationBand: info.LiquidationBand,
		}
		if info.LiquidationBand != nil {
			b, err := m.Stats().BandBalances(ctx, *info.LiquidationBand)
			if err != nil {
				return nil, err
			}
			out.BandBalances = &b
		}

		rows, err := s.ChartBands(ctx, m, bandsBalances, info.LiquidationBand, true)
		if err != nil {
			return nil, err
		}
		out.BandsBalances = rows
		return out, nil
	})
}

// FetchPrices reads the oracle price, oracle band, AMM price and base price
func (s *Service) FetchPrices(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[*Prices] {
	return collect[*Prices](ctx, s, "prices", markets, nil, func(ctx context.Context, m sdk.Market) (*Prices, error) {
		out := &Prices{}
		o := m.Oracle()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			out.OraclePrice, err = o.OraclePrice(gctx)
			return err
		})
		g.Go(func() (err error) {
			out.OraclePriceBand, err = o.OraclePriceBand(gctx)
			return err
		})
		g.Go(func() (err error) {
			out.Price, err = o.Price(gctx)
			return err
		})
		g.Go(func() (err error) {
			out.BasePrice, err = o.BasePrice(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (s *Service) FetchRates(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[*types.Rates] {
	useMultiCall := len(markets) > 1
	return collect[*types.Rates](ctx, s, "rates", markets, nil, func(ctx context.Context, m sdk.Market) (*types.Rates, error) {
		r, err := m.Stats().Rates(ctx, useMultiCall, s.useAPI)
		if err != nil {
			return nil, err
		}
		return &r, nil
	})
}

func (s *Service) FetchCapAndAvailable(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[sdk.CapAndAvailable] {
	useMultiCall := len(markets) > 1
	return collect(ctx, s, "capAndAvailable", markets, sdk.CapAndAvailable{}, func(ctx context.Context, m sdk.Market) (sdk.CapAndAvailable, error) {
		return m.Stats().CapAndAvailable(ctx, useMultiCall, s.useAPI)
	})
}

// FetchMaxLeverage reads the maximum leverage of every band count. Markets
// without leverage get an empty list.
func (s *Service) FetchMaxLeverage(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[[]MaxLeverage] {
	return collect[[]MaxLeverage](ctx, s, "maxLeverage", markets, nil, func(ctx context.Context, m sdk.Market) ([]MaxLeverage, error) {
		lev := sdk.PreferredLeverage(m)
		if lev == nil {
			return []MaxLeverage{}, nil
		}
		counts := m.Info().BandCounts()
		out := make([]MaxLeverage, len(counts))
		g, gctx := errgroup.WithContext(ctx)
		for i, n := range counts {
			i, n := i, n
			g.Go(func() error {
				v, err := lev.MaxLeverage(gctx, n)
				if err != nil {
					return err
				}
				out[i] = MaxLeverage{N: n, MaxLeverage: v}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// FetchRewards reads gauge rewards. A market without a gauge or vault gets
// empty rewards without any call.
func (s *Service) FetchRewards(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[Rewards] {
	useMultiCall := len(markets) > 1
	empty := Rewards{Other: []sdk.Reward{}, Crv: [2]decimal.Decimal{decimal.Zero, decimal.Zero}}

	return collect(ctx, s, "rewards", markets, empty, func(ctx context.Context, m sdk.Market) (Rewards, error) {
		v := m.Vault()
		if !m.Info().HasGauge() || v == nil {
			return empty, nil
		}

		if v.RewardsOnly() {
			other, err := v.RewardsApr(ctx, useMultiCall)
			if err != nil {
				return empty, err
			}
			return Rewards{Other: filterZeroApy(other), Crv: empty.Crv}, nil
		}

		var (
			other []sdk.Reward
			crv   [2]decimal.Decimal
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			other, err = v.RewardsApr(gctx, useMultiCall)
			return err
		})
		g.Go(func() (err error) {
			crv, err = v.CrvApr(gctx, useMultiCall)
			return err
		})
		if err := g.Wait(); err != nil {
			return empty, err
		}
		return Rewards{Other: filterZeroApy(other), Crv: crv}, nil
	})
}

func filterZeroApy(rewards []sdk.Reward) []sdk.Reward {
	out := make([]sdk.Reward, 0, len(rewards))
	for _, r := range rewards {
		if r.Apy.IsPositive() {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) FetchParameters(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[*sdk.Parameters] {
	return collect[*sdk.Parameters](ctx, s, "parameters", markets, nil, func(ctx context.Context, m sdk.Market) (*sdk.Parameters, error) {
		p, err := m.Stats().Parameters(ctx)
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
}

func (s *Service) FetchAmmBalances(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[sdk.AmmBalances] {
	useMultiCall := len(markets) > 1
	return collect(ctx, s, "ammBalances", markets, sdk.AmmBalances{}, func(ctx context.Context, m sdk.Market) (sdk.AmmBalances, error) {
		return m.Stats().AmmBalances(ctx, useMultiCall, s.useAPI)
	})
}

func (s *Service) FetchTotals(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[Totals] {
	useMultiCall := len(markets) > 1
	return collect(ctx, s, "totals", markets, Totals{}, func(ctx context.Context, m sdk.Market) (Totals, error) {
		debt, err := m.Stats().TotalDebt(ctx, useMultiCall, s.useAPI)
		if err != nil {
			return Totals{}, err
		}
		return Totals{TotalDebt: debt}, nil
	})
}

// FetchTotalLiquidity reads vault TVL. Markets without a vault report zero.
func (s *Service) FetchTotalLiquidity(ctx context.Context, markets []sdk.Market) map[string]pool.Entry[decimal.Decimal] {
	useMultiCall := len(markets) > 1
	return collect(ctx, s, "totalLiquidity", markets, decimal.Zero, func(ctx context.Context, m sdk.Market) (decimal.Decimal, error) {
		v := m.Vault()
		if v == nil {
			return decimal.Zero, nil
		}
		return v.TotalLiquidity(ctx, useMultiCall)
	})
}
