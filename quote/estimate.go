package quote

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

type gasCalls struct {
	isApproved      func(context.Context) (bool, error)
	estimate        func(context.Context) (types.Gas, error)
	estimateApprove func(context.Context) (types.Gas, error)
}

// EstimateGasAndApproval estimates a plain loan action. Repay with
// IsFullRepay estimates the full-repay family; remove collateral needs no
// approval.
func (e *Engine) EstimateGasAndApproval(ctx context.Context, m sdk.Market, action types.Action, in Input) EstimateResult {
	if action == types.ActionRepay && in.IsFullRepay {
		action = types.ActionFullRepay
	}
	key := activeKey(m, string(action), "estGas", in.parts()...)

	f, err := family(m, action)
	if err != nil {
		return e.estimateFailed(m, string(action), key, err)
	}
	p := in.Params()
	calls := gasCalls{
		isApproved:      func(ctx context.Context) (bool, error) { return f.IsApproved(ctx, p) },
		estimate:        func(ctx context.Context) (types.Gas, error) { return f.EstimateGas(ctx, p) },
		estimateApprove: func(ctx context.Context) (types.Gas, error) { return f.EstimateApproveGas(ctx, p) },
	}
	if action == types.ActionRemoveCollateral {
		calls.isApproved = nil
	}
	return e.estimate(ctx, m, string(action), key, calls)
}

// EstimateGasAndApprovalLeverage estimates a leveraged loan action. A
// leveraged repay routes its swap first.
func (e *Engine) EstimateGasAndApprovalLeverage(ctx context.Context, m sdk.Market, action types.Action, in Input) EstimateResult {
	key := activeKey(m, string(action), "estGas"+kindLeverage, in.parts()...)

	f, err := leverageFamily(m, action)
	if err != nil {
		return e.estimateFailed(m, string(action), key, err)
	}
	p := in.Params()
	if action == types.ActionRepay {
		if _, err := f.ExpectedBorrowed(ctx, p); err != nil {
			return e.estimateFailed(m, string(action), key, err)
		}
	}
	return e.estimate(ctx, m, string(action), key, gasCalls{
		isApproved:      func(ctx context.Context) (bool, error) { return f.IsApproved(ctx, p) },
		estimate:        func(ctx context.Context) (types.Gas, error) { return f.EstimateGas(ctx, p) },
		estimateApprove: func(ctx context.Context) (types.Gas, error) { return f.EstimateApproveGas(ctx, p) },
	})
}

// estimate checks approval and estimates the next step. Without an
// isApproved call the action is treated as approved.
func (e *Engine) estimate(ctx context.Context, m sdk.Market, family, key string, calls gasCalls) (res EstimateResult) {
	start := time.Now()
	res.ActiveKey = key
	defer e.observe(family, "estGas", start, &res.Error)

	res.IsApproved = true
	if calls.isApproved != nil {
		approved, err := calls.isApproved(ctx)
		if err != nil {
			return e.estimateFailed(m, family, key, err)
		}
		res.IsApproved = approved
	}

	var err error
	if res.IsApproved {
		res.EstimatedGas, err = calls.estimate(ctx)
	} else {
		res.EstimatedGas, err = calls.estimateApprove(ctx)
	}
	if err != nil {
		approved := res.IsApproved
		res = e.estimateFailed(m, family, key, err)
		res.IsApproved = approved
		return res
	}

	if e.gas != nil {
		cost, err := e.gas.CostNative(ctx, res.EstimatedGas)
		if err != nil {
			e.logger.Warn("Failed to price gas estimate",
				zap.String("market", m.Info().ID),
				zap.String("family", family),
				zap.Error(err))
		} else {
			res.Cost = types.Some(cost)
		}
	}
	return res
}

func (e *Engine) estimateFailed(m sdk.Market, family, key string, err error) EstimateResult {
	e.warn("Failed to estimate gas", m, family, err)
	return EstimateResult{ActiveKey: key, Error: types.EstimateErrorCode(err)}
}
