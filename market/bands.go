package market

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	llmath "github.com/michaelpento.lv/llamalend/utils/math"
)

// ChartBands turns a bands-balances map into chart rows ordered by band
// index. In market mode empty bands are dropped; a user's bands are all
// kept.
func (s *Service) ChartBands(ctx context.Context, m sdk.Market, balances types.BandsBalances, liquidationBand *int, isMarket bool) ([]types.ParsedBand, error) {
	bands := llmath.SortBands(balances)
	if isMarket {
		bands = llmath.FilterEmptyBands(bands)
	}

	rows := make([]types.ParsedBand, len(bands))
	idx := make([]int, len(bands))
	for i := range bands {
		idx[i] = i
	}

	errs := pool.For(s.pool, "chartBands", idx).Process(ctx, func(ctx context.Context, i int) error {
		b := bands[i]
		prices, err := m.Oracle().CalcBandPrices(ctx, b.N)
		if err != nil {
			return fmt.Errorf("band %d prices: %w", b.N, err)
		}
		usd, err := llmath.BandUsdValue(b.BandBalance, prices[0], prices[1])
		if err != nil {
			return fmt.Errorf("band %d value: %w", b.N, err)
		}
		rows[i] = types.ParsedBand{
			N:                     b.N,
			Borrowed:              b.Borrowed,
			Collateral:            b.Collateral,
			PUp:                   prices[0],
			PDown:                 prices[1],
			PUpDownMedian:         llmath.Median(prices[0], prices[1]),
			CollateralUsd:         usd.CollateralUsd,
			CollateralBorrowedUsd: usd.CollateralBorrowedUsd,
			IsLiquidationBand:     liquidationBand != nil && *liquidationBand == b.N,
		}
		return nil
	})
	if len(errs) > 0 {
		s.logger.Debug("Chart bands incomplete",
			zap.String("market", m.Info().ID),
			zap.Int("failures", len(errs)))
		return nil, errs[0]
	}
	return rows, nil
}
