package position

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/llamalend/health"
	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/sdk/fixture"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils"
	"github.com/michaelpento.lv/llamalend/utils/testutils"
)

var borrower = testutils.Borrower

const (
	lendID = "one-way-market-0"
	mintID = "crvusd-wsteth"
)

func loadMarkets(t *testing.T, failures map[string]string) ([]sdk.Market, map[string]*fixture.Market) {
	set := testutils.Markets(t, map[string]map[string]string{lendID: failures})
	return set.All(), set.ByID
}

func newService(t *testing.T, policy health.Policy) *Service {
	return NewService(pool.New(2), nil, health.NewCalculator(decimal.Zero, policy), zaptest.NewLogger(t))
}

func TestFetchLoansExists(t *testing.T) {
	markets, _ := loadMarkets(t, nil)
	results := newService(t, health.PolicyNegativeNotFull).FetchLoansExists(context.Background(), markets, borrower)
	require.Len(t, results, 3)

	assert.True(t, results[utils.UserActiveKey(lendID, borrower)].Value)
	assert.False(t, results[utils.UserActiveKey(mintID, borrower)].Value)
	assert.Empty(t, results[utils.UserActiveKey(mintID, borrower)].Error)
}

func TestFetchLoansDetails(t *testing.T) {
	markets, _ := loadMarkets(t, nil)
	results := newService(t, health.PolicyNegativeNotFull).FetchLoansDetails(context.Background(), markets, borrower)
	require.Len(t, results, 3)

	entry := results[utils.UserActiveKey(lendID, borrower)]
	require.Empty(t, entry.Error)
	d := entry.Value
	require.NotNil(t, d)

	// bands arrive as [high, low] and are reversed exactly once
	assert.Equal(t, types.BandRange{11, 20}, d.Bands)
	assert.True(t, d.IsCloseToLiquidation)
	assert.True(t, d.Health.Equal(decimal.RequireFromString("6.2")))
	assert.Equal(t, health.StatusSoftLiquidation, d.Status)
	assert.Equal(t, 10, d.Range)
	assert.True(t, d.BandsPct.IsPositive())

	lev, ok := d.Leverage.Value()
	require.True(t, ok)
	assert.True(t, lev.Equal(decimal.RequireFromString("2.1")))

	require.NotNil(t, d.Loss)
	assert.True(t, d.Loss.Loss.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, d.Loss.LossPct.Equal(decimal.NewFromInt(5)))

	// user mode keeps the empty band 13
	var ns []int
	for _, row := range d.BandsBalances {
		ns = append(ns, row.N)
	}
	assert.Equal(t, []int{11, 12, 13}, ns)
	assert.True(t, d.BandsBalances[1].IsLiquidationBand)
}

func TestFetchLoansDetailsClosePolicy(t *testing.T) {
	markets, _ := loadMarkets(t, nil)
	results := newService(t, health.PolicyCloseToLiquidation).FetchLoansDetails(context.Background(), markets[:1], borrower)

	d := results[utils.UserActiveKey(lendID, borrower)].Value
	require.NotNil(t, d)
	assert.True(t, d.Health.Equal(decimal.RequireFromString("1.4")))
}

func TestFetchLoansDetailsLossIsolated(t *testing.T) {
	markets, byID := loadMarkets(t, map[string]string{"user.loss": "prices api unavailable"})
	results := newService(t, health.PolicyNegativeNotFull).FetchLoansDetails(context.Background(), markets, borrower)

	entry := results[utils.UserActiveKey(lendID, borrower)]
	assert.Empty(t, entry.Error)
	require.NotNil(t, entry.Value)
	assert.Nil(t, entry.Value.Loss)
	assert.Equal(t, 1, byID[lendID].Calls("user.loss"))
}

func TestFetchLoansDetailsFailure(t *testing.T) {
	markets, _ := loadMarkets(t, map[string]string{"user.health": "user rejected action"})
	results := newService(t, health.PolicyNegativeNotFull).FetchLoansDetails(context.Background(), markets, borrower)

	entry := results[utils.UserActiveKey(lendID, borrower)]
	assert.Nil(t, entry.Value)
	assert.Equal(t, types.ErrCodeUserRejected, entry.Error)

	other := results[utils.UserActiveKey(mintID, borrower)]
	assert.Empty(t, other.Error)
	assert.NotNil(t, other.Value)
}

func TestFetchMarketBalances(t *testing.T) {
	markets, byID := loadMarkets(t, nil)
	results := newService(t, health.PolicyNegativeNotFull).FetchMarketBalances(context.Background(), markets, borrower)

	lend := results[utils.UserActiveKey(lendID, borrower)]
	require.Empty(t, lend.Error)
	assert.True(t, lend.Value.VaultShares.Equal(decimal.NewFromInt(1000)))
	assert.True(t, lend.Value.VaultSharesConverted.Equal(decimal.NewFromInt(1020)))

	mint := results[utils.UserActiveKey(mintID, borrower)]
	require.Empty(t, mint.Error)
	assert.True(t, mint.Value.VaultSharesConverted.IsZero())
	assert.Zero(t, byID[mintID].Calls("vault.convertToAssets"))
}

func TestFetchClaimables(t *testing.T) {
	markets, byID := loadMarkets(t, nil)
	results := newService(t, health.PolicyNegativeNotFull).FetchClaimables(context.Background(), markets, borrower)

	lend := results[utils.UserActiveKey(lendID, borrower)]
	require.Empty(t, lend.Error)
	assert.True(t, lend.Value.Crv.Equal(decimal.RequireFromString("12.5")))
	require.Len(t, lend.Value.Rewards, 1)
	assert.Equal(t, "ARB", lend.Value.Rewards[0].Symbol)

	mint := results[utils.UserActiveKey(mintID, borrower)]
	assert.Empty(t, mint.Value.Rewards)
	assert.Zero(t, byID[mintID].TotalCalls())
}
