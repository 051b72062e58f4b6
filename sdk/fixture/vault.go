package fixture

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

var vaultGas = map[types.VaultOp]uint64{
	types.VaultDeposit:  180_000,
	types.VaultMint:     180_000,
	types.VaultWithdraw: 160_000,
	types.VaultRedeem:   160_000,
	types.VaultStake:    140_000,
	types.VaultUnstake:  120_000,
}

type vault struct {
	m    *Market
	spec *VaultSpec
}

func (v *vault) sharePrice() decimal.Decimal {
	if v.spec.SharePrice.IsPositive() {
		return v.spec.SharePrice.Decimal
	}
	return decimal.NewFromInt(1)
}

func (v *vault) RewardsOnly() bool {
	return v.spec.RewardsOnly
}

func (v *vault) RewardsApr(ctx context.Context, useMultiCall bool) ([]sdk.Reward, error) {
	if err := v.m.call("vault.rewardsApr"); err != nil {
		return nil, err
	}
	out := make([]sdk.Reward, 0, len(v.spec.Rewards))
	for _, r := range v.spec.Rewards {
		out = append(out, sdk.Reward{
			Symbol:       r.Symbol,
			Name:         r.Symbol,
			TokenAddress: common.HexToAddress(r.Address),
			GaugeAddress: v.m.info.Gauge,
			Decimals:     18,
			TokenPrice:   r.Price.Decimal,
			Apy:          r.Apy.Decimal,
		})
	}
	return out, nil
}

func (v *vault) CrvApr(ctx context.Context, useMultiCall bool) ([2]decimal.Decimal, error) {
	if err := v.m.call("vault.crvApr"); err != nil {
		return [2]decimal.Decimal{}, err
	}
	var out [2]decimal.Decimal
	for i := 0; i < len(v.spec.Crv) && i < 2; i++ {
		out[i] = v.spec.Crv[i].Decimal
	}
	return out, nil
}

func (v *vault) TotalLiquidity(ctx context.Context, useMultiCall bool) (decimal.Decimal, error) {
	if err := v.m.call("vault.totalLiquidity"); err != nil {
		return decimal.Zero, err
	}
	return v.spec.TotalLiquidity.Decimal, nil
}

func (v *vault) ConvertToAssets(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error) {
	if err := v.m.call("vault.convertToAssets"); err != nil {
		return decimal.Zero, err
	}
	return shares.Mul(v.sharePrice()), nil
}

func (v *vault) Max(ctx context.Context, op types.VaultOp, user common.Address) (decimal.Decimal, error) {
	if err := v.m.call("vault." + string(op) + ".max"); err != nil {
		return decimal.Zero, err
	}
	spec, _ := v.m.user(user)
	w := spec.Wallet
	switch op {
	case types.VaultDeposit:
		return w.Borrowed.Decimal, nil
	case types.VaultMint:
		return w.Borrowed.Div(v.sharePrice()).Round(18), nil
	case types.VaultWithdraw:
		return w.VaultShares.Mul(v.sharePrice()), nil
	case types.VaultRedeem, types.VaultStake:
		return w.VaultShares.Decimal, nil
	case types.VaultUnstake:
		return w.Gauge.Decimal, nil
	default:
		return decimal.Zero, sdk.ErrUnsupported
	}
}

func (v *vault) Preview(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := v.m.call("vault." + string(op) + ".preview"); err != nil {
		return decimal.Zero, err
	}
	switch op {
	case types.VaultDeposit, types.VaultWithdraw:
		return amount.Div(v.sharePrice()).Round(18), nil
	case types.VaultMint, types.VaultRedeem:
		return amount.Mul(v.sharePrice()), nil
	default:
		return decimal.Zero, sdk.ErrUnsupported
	}
}

func (v *vault) IsApproved(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (bool, error) {
	if err := v.m.call("vault." + string(op) + ".isApproved"); err != nil {
		return false, err
	}
	if !op.NeedsApproval() {
		return true, nil
	}
	return v.m.spec.Approved, nil
}

func (v *vault) Approve(ctx context.Context, op types.VaultOp, amount decimal.Decimal) ([]common.Hash, error) {
	key := "vault." + string(op) + ".approve"
	if err := v.m.call(key); err != nil {
		return nil, err
	}
	return []common.Hash{v.m.submit(key)}, nil
}

func (v *vault) Execute(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (common.Hash, error) {
	if err := v.m.call("vault." + string(op) + ".execute"); err != nil {
		return common.Hash{}, err
	}
	return v.m.submit("vault." + string(op)), nil
}

func (v *vault) EstimateGas(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (types.Gas, error) {
	if err := v.m.call("vault." + string(op) + ".estimateGas"); err != nil {
		return nil, err
	}
	return types.Gas{vaultGas[op]}, nil
}

func (v *vault) EstimateApproveGas(ctx context.Context, op types.VaultOp, amount decimal.Decimal) (types.Gas, error) {
	if err := v.m.call("vault." + string(op) + ".estimateApproveGas"); err != nil {
		return nil, err
	}
	return types.Gas{approveGas}, nil
}

func (v *vault) ClaimableCrv(ctx context.Context, user common.Address) (decimal.Decimal, error) {
	if err := v.m.call("vault.claimableCrv"); err != nil {
		return decimal.Zero, err
	}
	return v.spec.ClaimableCrv.Decimal, nil
}

func (v *vault) ClaimableRewards(ctx context.Context, user common.Address) ([]sdk.ClaimableReward, error) {
	if err := v.m.call("vault.claimableRewards"); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(v.spec.ClaimableRewards))
	for s := range v.spec.ClaimableRewards {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make([]sdk.ClaimableReward, 0, len(symbols))
	for _, s := range symbols {
		r := sdk.ClaimableReward{Symbol: s, Amount: v.spec.ClaimableRewards[s].Decimal}
		for _, spec := range v.spec.Rewards {
			if spec.Symbol == s {
				r.Token = common.HexToAddress(spec.Address)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (v *vault) ClaimCrv(ctx context.Context) (common.Hash, error) {
	if err := v.m.call("vault.claimCrv"); err != nil {
		return common.Hash{}, err
	}
	return v.m.submit("vault.claimCrv"), nil
}

func (v *vault) ClaimRewards(ctx context.Context) (common.Hash, error) {
	if err := v.m.call("vault.claimRewards"); err != nil {
		return common.Hash{}, err
	}
	return v.m.submit("vault.claimRewards"), nil
}
