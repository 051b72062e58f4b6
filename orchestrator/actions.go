package orchestrator

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils"
)

func loanKey(m sdk.Market, action string, p sdk.LoanParams) string {
	return utils.ActiveKey(m.Info().ID+"-"+action,
		p.User.Hex(),
		p.Collateral.String(),
		p.Borrowed.String(),
		p.Debt.String(),
		p.StateCollateral.String(),
		strconv.Itoa(p.N),
		p.Slippage.String())
}

func loanPlan(m sdk.Market, name string, f sdk.LoanFamily, action types.Action, p sdk.LoanParams) *plan {
	pl := &plan{
		action:     name,
		market:     m.Info().ID,
		activeKey:  loanKey(m, name, p),
		isApproved: func(ctx context.Context) (bool, error) { return f.IsApproved(ctx, p) },
		approve:    func(ctx context.Context) ([]common.Hash, error) { return f.Approve(ctx, p) },
		submit:     func(ctx context.Context) (common.Hash, error) { return f.Execute(ctx, p) },
		submitCode: types.ErrCodeStep,
	}
	if action == types.ActionRemoveCollateral {
		pl.isApproved, pl.approve = nil, nil
	}
	return pl
}

// failedPlan fails at submit with err, for actions the market cannot run
func failedPlan(m sdk.Market, name, key, code string, err error) *plan {
	return &plan{
		action:     name,
		market:     m.Info().ID,
		activeKey:  key,
		submit:     func(context.Context) (common.Hash, error) { return common.Hash{}, err },
		submitCode: code,
	}
}

func plainPlan(m sdk.Market, action types.Action, p sdk.LoanParams) *plan {
	f := m.Family(action)
	if f == nil {
		return failedPlan(m, string(action), loanKey(m, string(action), p), types.ErrCodeStep, sdk.ErrUnsupported)
	}
	return loanPlan(m, string(action), f, action, p)
}

func leveragePlan(m sdk.Market, action types.Action, p sdk.LoanParams) *plan {
	name := string(action) + "Leverage"
	lev := sdk.PreferredLeverage(m)
	if lev == nil {
		return failedPlan(m, name, loanKey(m, name, p), types.ErrCodeStep, sdk.ErrUnsupported)
	}
	f := lev.Family(action)
	if f == nil {
		return failedPlan(m, name, loanKey(m, name, p), types.ErrCodeStep, sdk.ErrUnsupported)
	}
	return loanPlan(m, name, f, action, p)
}

// Loan runs a plain loan action: create loan, borrow more, repay, full
// repay, add or remove collateral, or self-liquidate
func (o *Orchestrator) Loan(ctx context.Context, m sdk.Market, action types.Action, p sdk.LoanParams) types.TxResult {
	return o.execute(ctx, plainPlan(m, action, p))
}

// LoanLeverage runs a leveraged create loan, borrow more or repay
func (o *Orchestrator) LoanLeverage(ctx context.Context, m sdk.Market, action types.Action, p sdk.LoanParams) types.TxResult {
	return o.execute(ctx, leveragePlan(m, action, p))
}

// ApproveLoan only sends the approvals of a plain loan action
func (o *Orchestrator) ApproveLoan(ctx context.Context, m sdk.Market, action types.Action, p sdk.LoanParams) types.TxHashesResult {
	return o.approveOnly(ctx, plainPlan(m, action, p))
}

// ApproveLoanLeverage only sends the approvals of a leveraged loan action.
// Leveraged actions may approve both tokens.
func (o *Orchestrator) ApproveLoanLeverage(ctx context.Context, m sdk.Market, action types.Action, p sdk.LoanParams) types.TxHashesResult {
	return o.approveOnly(ctx, leveragePlan(m, action, p))
}

// vaultSubmitCode is the error code of a failed vault operation
func vaultSubmitCode(op types.VaultOp) string {
	if op == types.VaultRedeem {
		return types.ErrCodeStep
	}
	return types.ErrCodeStepDeposit
}

func vaultKey(m sdk.Market, op types.VaultOp, amount decimal.Decimal) string {
	return utils.ActiveKey(m.Info().ID+"-vault-"+string(op), amount.String())
}

func vaultPlan(m sdk.Market, op types.VaultOp, amount decimal.Decimal) *plan {
	name := "vault." + string(op)
	key := vaultKey(m, op, amount)
	v := m.Vault()
	if v == nil {
		return failedPlan(m, name, key, vaultSubmitCode(op), sdk.ErrUnsupported)
	}
	pl := &plan{
		action:     name,
		market:     m.Info().ID,
		activeKey:  key,
		submit:     func(ctx context.Context) (common.Hash, error) { return v.Execute(ctx, op, amount) },
		submitCode: vaultSubmitCode(op),
	}
	if op.NeedsApproval() {
		pl.isApproved = func(ctx context.Context) (bool, error) { return v.IsApproved(ctx, op, amount) }
		pl.approve = func(ctx context.Context) ([]common.Hash, error) { return v.Approve(ctx, op, amount) }
	}
	return pl
}

// Vault runs a vault operation. Deposit, mint and stake approve first when
// the allowance is missing.
func (o *Orchestrator) Vault(ctx context.Context, m sdk.Market, op types.VaultOp, amount decimal.Decimal) types.TxResult {
	return o.execute(ctx, vaultPlan(m, op, amount))
}

// VaultWithdraw withdraws amount of assets. A full withdraw redeems every
// share user holds instead, leaving no dust behind.
func (o *Orchestrator) VaultWithdraw(ctx context.Context, m sdk.Market, user common.Address, amount decimal.Decimal, full bool) types.TxResult {
	if !full {
		return o.Vault(ctx, m, types.VaultWithdraw, amount)
	}
	v := m.Vault()
	if v == nil {
		return o.execute(ctx, failedPlan(m, "vault."+string(types.VaultRedeem), vaultKey(m, types.VaultRedeem, amount), types.ErrCodeStep, sdk.ErrUnsupported))
	}
	shares, err := v.Max(ctx, types.VaultRedeem, user)
	if err != nil {
		return o.execute(ctx, failedPlan(m, "vault."+string(types.VaultRedeem), vaultKey(m, types.VaultRedeem, amount), types.ErrCodeStep, err))
	}
	return o.Vault(ctx, m, types.VaultRedeem, shares)
}

// ApproveVault only sends the approvals of a vault operation
func (o *Orchestrator) ApproveVault(ctx context.Context, m sdk.Market, op types.VaultOp, amount decimal.Decimal) types.TxHashesResult {
	return o.approveOnly(ctx, vaultPlan(m, op, amount))
}

func claimPlan(m sdk.Market, name string, claim func(sdk.Vault, context.Context) (common.Hash, error)) *plan {
	key := utils.ActiveKey(m.Info().ID+"-"+name, m.Info().Gauge.Hex())
	v := m.Vault()
	if v == nil || !m.Info().HasGauge() {
		return failedPlan(m, name, key, types.ErrCodeStepClaim, sdk.ErrUnsupported)
	}
	return &plan{
		action:     name,
		market:     m.Info().ID,
		activeKey:  key,
		submit:     func(ctx context.Context) (common.Hash, error) { return claim(v, ctx) },
		submitCode: types.ErrCodeStepClaim,
	}
}

// ClaimCrv claims the CRV emissions of the market's gauge
func (o *Orchestrator) ClaimCrv(ctx context.Context, m sdk.Market) types.TxResult {
	return o.execute(ctx, claimPlan(m, "claimCrv", sdk.Vault.ClaimCrv))
}

// ClaimRewards claims every non-CRV gauge reward
func (o *Orchestrator) ClaimRewards(ctx context.Context, m sdk.Market) types.TxResult {
	return o.execute(ctx, claimPlan(m, "claimRewards", sdk.Vault.ClaimRewards))
}
