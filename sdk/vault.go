package sdk

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/types"
)

// Reward is one non-CRV gauge reward
type Reward struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	TokenAddress common.Address  `json:"tokenAddress"`
	GaugeAddress common.Address  `json:"gaugeAddress"`
	Decimals     int             `json:"decimals"`
	TokenPrice   decimal.Decimal `json:"tokenPrice"`
	Apy          decimal.Decimal `json:"apy"`
}

type ClaimableReward struct {
	Token  common.Address  `json:"token"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// Vault is the lending vault of a Lend market
type Vault interface {
	// RewardsOnly reports whether CRV and other rewards share one endpoint
	RewardsOnly() bool
	RewardsApr(ctx context.Context, useMultiCall bool) ([]Reward, error)
	// CrvApr returns the [min, max] boost CRV APR
	CrvApr(ctx context.Context, useMultiCall bool) ([2]decimal.Decimal, error)
	TotalLiquidity(ctx context.Context, useMultiCall bool) (decimal.Decimal, error)
	ConvertToAssets(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error)

	Max(ctx context.Context, op types.VaultOp, user common.Address) (decimal.Decimal, error)
	Preview(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (decimal.Decimal, error)
	IsApproved(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (bool, error)
	Approve(ctx context.Context, op types.VaultOp, amount decimal.Decimal) ([]common.Hash, error)
	Execute(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (common.Hash, error)
	EstimateGas(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (types.Gas, error)
	EstimateApproveGas(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (types.Gas, error)

	ClaimableCrv(ctx context.Context, user common.Address) (decimal.Decimal, error)
	ClaimableRewards(ctx context.Context, user common.Address) ([]ClaimableReward, error)
	ClaimCrv(ctx context.Context) (common.Hash, error)
	ClaimRewards(ctx context.Context) (common.Hash, error)
}
