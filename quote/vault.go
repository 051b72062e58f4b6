package quote

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

const familyVault = "vault"

// VaultMax returns the most the user can move with op
func (e *Engine) VaultMax(ctx context.Context, m sdk.Market, op types.VaultOp, user common.Address) (res VaultMaxResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, familyVault, string(op)+"Max", user.Hex())
	res.Max = decimal.Zero
	defer e.observe(familyVault, string(op)+"Max", start, &res.Error)

	v := m.Vault()
	if v == nil {
		res.Error = types.ErrorMessage(ErrNoVault, types.ErrCodeAPI)
		return res
	}
	limit, err := v.Max(ctx, op, user)
	if err != nil {
		e.warn("Failed to read vault max", m, familyVault, err)
		res.Error = types.ErrorMessage(err, types.ErrCodeAPI)
		return res
	}
	res.Max = limit
	return res
}

// VaultDetail previews op and projects lending rates after it. Deposits
// add amount to reserves and withdrawals remove it; a redeem removes the
// previewed assets.
func (e *Engine) VaultDetail(ctx context.Context, m sdk.Market, op types.VaultOp, amount types.Amount) (res VaultDetailResult) {
	start := time.Now()
	res.ActiveKey = activeKey(m, familyVault, string(op)+"Detail", amount.String())
	res.Preview = decimal.Zero
	defer e.observe(familyVault, string(op)+"Detail", start, &res.Error)

	v := m.Vault()
	if v == nil {
		res.Error = types.ErrorMessage(ErrNoVault, types.ErrCodeAPI)
		return res
	}
	amt := amount.OrZero()

	var (
		preview decimal.Decimal
		rates   types.Rates
		err     error
	)
	switch op {
	case types.VaultDeposit, types.VaultMint, types.VaultWithdraw:
		dReserves := amt
		if op == types.VaultWithdraw {
			dReserves = amt.Neg()
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			preview, err = v.Preview(gctx, op, amt)
			return err
		})
		g.Go(func() (err error) {
			rates, err = m.Stats().FutureRates(gctx, dReserves, decimal.Zero)
			return err
		})
		err = g.Wait()
	case types.VaultRedeem:
		if preview, err = v.Preview(ctx, op, amt); err == nil {
			rates, err = m.Stats().FutureRates(ctx, preview.Neg(), decimal.Zero)
		}
	default:
		err = sdk.ErrUnsupported
	}
	if err != nil {
		e.warn("Failed to compute vault detail", m, familyVault, err)
		res.Error = types.ErrorMessage(err, types.ErrCodeAPI)
		return res
	}

	res.Preview = preview
	res.FutureRates = &rates
	return res
}

// VaultEstimateGasAndApproval estimates op. Only deposit, mint and stake
// move tokens that need an allowance.
func (e *Engine) VaultEstimateGasAndApproval(ctx context.Context, m sdk.Market, op types.VaultOp, amount types.Amount) EstimateResult {
	key := activeKey(m, familyVault, string(op)+"EstGas", amount.String())
	v := m.Vault()
	if v == nil {
		return e.estimateFailed(m, familyVault, key, ErrNoVault)
	}
	amt := amount.OrZero()
	calls := gasCalls{
		estimate:        func(ctx context.Context) (types.Gas, error) { return v.EstimateGas(ctx, op, amt) },
		estimateApprove: func(ctx context.Context) (types.Gas, error) { return v.EstimateApproveGas(ctx, op, amt) },
	}
	if op.NeedsApproval() {
		calls.isApproved = func(ctx context.Context) (bool, error) { return v.IsApproved(ctx, op, amt) }
	}
	return e.estimate(ctx, m, familyVault, key, calls)
}
