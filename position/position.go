// Package position aggregates one user's positions across many markets.
package position

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/llamalend/health"
	"github.com/michaelpento.lv/llamalend/market"
	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils"
	llmath "github.com/michaelpento.lv/llamalend/utils/math"
)

// LoanDetails is a user's loan in one market with its derived risk figures
type LoanDetails struct {
	State                types.UserState    `json:"state"`
	Health               decimal.Decimal    `json:"health"`
	HealthFull           decimal.Decimal    `json:"healthFull"`
	HealthNotFull        decimal.Decimal    `json:"healthNotFull"`
	Bands                types.BandRange    `json:"bands"`
	BandsBalances        []types.ParsedBand `json:"bandsBalances"`
	BandsPct             decimal.Decimal    `json:"bandsPct"`
	IsCloseToLiquidation bool               `json:"isCloseToLiquidation"`
	Range                int                `json:"range"`
	Prices               []decimal.Decimal  `json:"prices"`
	// Loss is nil when the loss history could not be read
	Loss *types.UserLoss `json:"loss,omitempty"`
	// Leverage is unset for markets that do not report it
	Leverage types.Amount  `json:"leverage"`
	Status   health.Status `json:"status"`
}

// MarketBalances are a user's wallet balances for one market
type MarketBalances struct {
	types.WalletBalances
	VaultSharesConverted decimal.Decimal `json:"vaultSharesConverted"`
}

// Claimables are a user's unclaimed gauge rewards
type Claimables struct {
	Crv     decimal.Decimal       `json:"crv"`
	Rewards []sdk.ClaimableReward `json:"rewards"`
}

// Service reads user positions. Results are keyed by utils.UserActiveKey.
type Service struct {
	pool    *pool.Pool
	markets *market.Service
	health  *health.Calculator
	logger  *zap.Logger
}

func NewService(p *pool.Pool, markets *market.Service, calc *health.Calculator, logger *zap.Logger) *Service {
	if p == nil {
		p = pool.New(pool.DefaultConcurrency)
	}
	if calc == nil {
		calc = health.NewCalculator(decimal.Zero, health.PolicyNegativeNotFull)
	}
	logger = utils.OrNop(logger)
	if markets == nil {
		markets = market.NewService(p, false, logger)
	}
	return &Service{
		pool:    p,
		markets: markets,
		health:  calc,
		logger:  logger.Named("position"),
	}
}

func userKeys(markets []sdk.Market, user common.Address) []string {
	out := make([]string, 0, len(markets))
	for _, m := range markets {
		out = append(out, utils.UserActiveKey(m.Info().ID, user))
	}
	return out
}

func collect[V any](ctx context.Context, s *Service, batch string, markets []sdk.Market, user common.Address, fallback V, fn func(context.Context, sdk.Market) (V, error)) map[string]pool.Entry[V] {
	results := pool.NewResults[string, V]()

	pool.For(s.pool, batch, markets).
		HandleError(func(err error, m sdk.Market) {
			key := utils.UserActiveKey(m.Info().ID, user)
			s.logger.Warn("Failed to fetch user position",
				zap.String("batch", batch),
				zap.String("market", m.Info().ID),
				zap.String("user", utils.ShortenAccount(user)),
				zap.Error(err))
			results.PutFallback(key, fallback, types.ErrorMessage(err, types.ErrCodeAPI))
		}).
		Process(ctx, func(ctx context.Context, m sdk.Market) error {
			v, err := fn(ctx, m)
			if err != nil {
				return err
			}
			results.Put(utils.UserActiveKey(m.Info().ID, user), v)
			return nil
		})

	results.Ensure(userKeys(markets, user), fallback, types.ErrCodeAPI)
	return results.Map()
}

// FetchLoansExists reports whether user has a loan in each market
func (s *Service) FetchLoansExists(ctx context.Context, markets []sdk.Market, user common.Address) map[string]pool.Entry[bool] {
	return collect(ctx, s, "loansExists", markets, user, false, func(ctx context.Context, m sdk.Market) (bool, error) {
		return m.User().LoanExists(ctx, user)
	})
}

// FetchLoansDetails reads every loan fact of user in each market. The loss
// history is read separately and its failure only leaves Loss nil.
func (s *Service) FetchLoansDetails(ctx context.Context, markets []sdk.Market, user common.Address) map[string]pool.Entry[*LoanDetails] {
	return collect[*LoanDetails](ctx, s, "loansDetails", markets, user, nil, func(ctx context.Context, m sdk.Market) (*LoanDetails, error) {
		return s.loanDetails(ctx, m, user)
	})
}

func (s *Service) loanDetails(ctx context.Context, m sdk.Market, user common.Address) (*LoanDetails, error) {
	var (
		d               LoanDetails
		rawBands        types.RawBands
		bandsBalances   types.BandsBalances
		oraclePriceBand *int
	)
	u := m.User()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.State, err = u.State(gctx, user)
		return err
	})
	g.Go(func() (err error) {
		d.HealthFull, err = u.Health(gctx, user, true)
		return err
	})
	g.Go(func() (err error) {
		d.HealthNotFull, err = u.Health(gctx, user, false)
		return err
	})
	g.Go(func() (err error) {
		d.Range, err = u.Range(gctx, user)
		return err
	})
	g.Go(func() (err error) {
		rawBands, err = u.Bands(gctx, user)
		return err
	})
	g.Go(func() (err error) {
		d.Prices, err = u.Prices(gctx, user)
		return err
	})
	g.Go(func() (err error) {
		bandsBalances, err = u.BandsBalances(gctx, user)
		return err
	})
	g.Go(func() (err error) {
		oraclePriceBand, err = m.Oracle().OraclePriceBand(gctx)
		return err
	})
	if lr, ok := u.(sdk.LeverageReader); ok {
		g.Go(func() error {
			lev, err := lr.CurrentLeverage(gctx, user)
			if err != nil {
				return err
			}
			d.Leverage = types.Some(lev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if loss, err := u.Loss(ctx, user); err != nil {
		s.logger.Warn("Failed to fetch user loss",
			zap.String("market", m.Info().ID),
			zap.String("user", utils.ShortenAccount(user)),
			zap.Error(err))
	} else {
		d.Loss = &loss
	}

	info, err := m.Stats().BandsInfo(ctx)
	if err != nil {
		return nil, err
	}

	d.Bands = llmath.DisplayBands(rawBands)
	d.IsCloseToLiquidation = health.IsCloseToLiquidation(d.Bands[0], info.LiquidationBand, oraclePriceBand)
	d.Health = s.health.DisplayHealth(d.HealthFull, d.HealthNotFull, d.IsCloseToLiquidation)
	d.Status = s.health.ClassifyLiquidationStatus(d.HealthNotFull, d.IsCloseToLiquidation, d.State.Borrowed)

	d.BandsBalances, err = s.markets.ChartBands(ctx, m, bandsBalances, info.LiquidationBand, false)
	if err != nil {
		return nil, err
	}

	d.BandsPct = decimal.Zero
	if d.Range > 0 {
		if d.BandsPct, err = m.Oracle().CalcRangePct(ctx, d.Range); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// FetchMarketBalances reads wallet balances. Vault shares held in a lend
// market are also converted to their asset value.
func (s *Service) FetchMarketBalances(ctx context.Context, markets []sdk.Market, user common.Address) map[string]pool.Entry[MarketBalances] {
	return collect(ctx, s, "marketBalances", markets, user, MarketBalances{}, func(ctx context.Context, m sdk.Market) (MarketBalances, error) {
		w, err := m.Wallet().Balances(ctx, user)
		if err != nil {
			return MarketBalances{}, err
		}
		out := MarketBalances{WalletBalances: w, VaultSharesConverted: decimal.Zero}
		if v := m.Vault(); v != nil && w.VaultShares.IsPositive() {
			if out.VaultSharesConverted, err = v.ConvertToAssets(ctx, w.VaultShares); err != nil {
				return MarketBalances{}, err
			}
		}
		return out, nil
	})
}

// FetchClaimables reads claimable CRV and reward tokens. Markets without a
// gauge or vault report nothing to claim.
func (s *Service) FetchClaimables(ctx context.Context, markets []sdk.Market, user common.Address) map[string]pool.Entry[Claimables] {
	empty := Claimables{Crv: decimal.Zero, Rewards: []sdk.ClaimableReward{}}
	return collect(ctx, s, "claimables", markets, user, empty, func(ctx context.Context, m sdk.Market) (Claimables, error) {
		v := m.Vault()
		if v == nil || !m.Info().HasGauge() {
			return empty, nil
		}

		var out Claimables
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			out.Crv, err = v.ClaimableCrv(gctx, user)
			return err
		})
		g.Go(func() (err error) {
			out.Rewards, err = v.ClaimableRewards(gctx, user)
			return err
		})
		if err := g.Wait(); err != nil {
			return empty, err
		}
		return out, nil
	})
}
