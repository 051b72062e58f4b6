package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

// Group names one fact group
type Group string

const (
	GroupBands           Group = "bands"
	GroupPrices          Group = "prices"
	GroupRates           Group = "rates"
	GroupCapAndAvailable Group = "capAndAvailable"
	GroupMaxLeverage     Group = "maxLeverage"
	GroupRewards         Group = "rewards"
	GroupParameters      Group = "parameters"
	GroupAmmBalances     Group = "ammBalances"
	GroupTotals          Group = "totals"
	GroupTotalLiquidity  Group = "totalLiquidity"
)

// AllGroups lists every fact group
var AllGroups = []Group{
	GroupBands, GroupPrices, GroupRates, GroupCapAndAvailable, GroupMaxLeverage,
	GroupRewards, GroupParameters, GroupAmmBalances, GroupTotals, GroupTotalLiquidity,
}

// ParseGroup parses a fact group name
func ParseGroup(s string) (Group, error) {
	for _, g := range AllGroups {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown fact group %q", s)
}

// Snapshot holds the results of one Fetch. Groups that were not requested
// stay nil.
type Snapshot struct {
	Bands           map[string]pool.Entry[*Bands]              `json:"bands,omitempty"`
	Prices          map[string]pool.Entry[*Prices]             `json:"prices,omitempty"`
	Rates           map[string]pool.Entry[*types.Rates]        `json:"rates,omitempty"`
	CapAndAvailable map[string]pool.Entry[sdk.CapAndAvailable] `json:"capAndAvailable,omitempty"`
	MaxLeverage     map[string]pool.Entry[[]MaxLeverage]       `json:"maxLeverage,omitempty"`
	Rewards         map[string]pool.Entry[Rewards]             `json:"rewards,omitempty"`
	Parameters      map[string]pool.Entry[*sdk.Parameters]     `json:"parameters,omitempty"`
	AmmBalances     map[string]pool.Entry[sdk.AmmBalances]     `json:"ammBalances,omitempty"`
	Totals          map[string]pool.Entry[Totals]              `json:"totals,omitempty"`
	TotalLiquidity  map[string]pool.Entry[decimal.Decimal]     `json:"totalLiquidity,omitempty"`
}

// Fetch runs the requested groups as independent concurrent batches. With
// no groups every group is fetched.
func (s *Service) Fetch(ctx context.Context, markets []sdk.Market, groups ...Group) *Snapshot {
	if len(groups) == 0 {
		groups = AllGroups
	}

	snap := &Snapshot{}
	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	seen := make(map[Group]bool, len(groups))
	for _, g := range groups {
		if seen[g] {
			continue
		}
		seen[g] = true
		switch g {
		case GroupBands:
			run(func() { snap.Bands = s.FetchBands(ctx, markets) })
		case GroupPrices:
			run(func() { snap.Prices = s.FetchPrices(ctx, markets) })
		case GroupRates:
			run(func() { snap.Rates = s.FetchRates(ctx, markets) })
		case GroupCapAndAvailable:
			run(func() { snap.CapAndAvailable = s.FetchCapAndAvailable(ctx, markets) })
		case GroupMaxLeverage:
			run(func() { snap.MaxLeverage = s.FetchMaxLeverage(ctx, markets) })
		case GroupRewards:
			run(func() { snap.Rewards = s.FetchRewards(ctx, markets) })
		case GroupParameters:
			run(func() { snap.Parameters = s.FetchParameters(ctx, markets) })
		case GroupAmmBalances:
			run(func() { snap.AmmBalances = s.FetchAmmBalances(ctx, markets) })
		case GroupTotals:
			run(func() { snap.Totals = s.FetchTotals(ctx, markets) })
		case GroupTotalLiquidity:
			run(func() { snap.TotalLiquidity = s.FetchTotalLiquidity(ctx, markets) })
		}
	}
	wg.Wait()
	return snap
}
