package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/sdk/fixture"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils/metrics"
	"github.com/michaelpento.lv/llamalend/utils/testutils"
)

const (
	lendID = "one-way-market-0"
	mintID = "crvusd-wsteth"
)

var borrower = testutils.Borrower

type env struct {
	chain   *fixture.Chain
	markets map[string]*fixture.Market
	states  []State
	mu      sync.Mutex
}

func newEnv(t *testing.T, failures map[string]map[string]string) *env {
	set := testutils.Markets(t, failures)
	return &env{chain: set.Chain, markets: set.ByID}
}

func (e *env) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	opts = append(opts, WithTransitionHook(func(tr Transition) {
		e.mu.Lock()
		e.states = append(e.states, tr.To)
		e.mu.Unlock()
	}))
	return New(fixture.NewProvider(e.chain, 0), zaptest.NewLogger(t), opts...)
}

func (e *env) label(t *testing.T, hash string) string {
	t.Helper()
	label, ok := e.chain.Label(common.HexToHash(hash))
	require.True(t, ok, "hash %s was never submitted", hash)
	return label
}

func createParams() sdk.LoanParams {
	return sdk.LoanParams{
		User:       borrower,
		Collateral: decimal.NewFromInt(1),
		Debt:       decimal.NewFromInt(1000),
		N:          10,
	}
}

func TestLoanApprovesWhenNeeded(t *testing.T) {
	e := newEnv(t, nil)
	res := e.orchestrator(t).Loan(context.Background(), e.markets[lendID], types.ActionCreateLoan, createParams())

	require.True(t, res.Succeeded(), res.ErrorDetail)
	require.Len(t, res.ApproveHashes, 1)
	assert.Equal(t, lendID+".createLoan.approve", e.label(t, res.ApproveHashes[0]))
	assert.Equal(t, lendID+".createLoan", e.label(t, res.Hash))
	assert.NotEmpty(t, res.ActiveKey)
	assert.Equal(t, []State{StateApproving, StateSubmitting, StateConfirming, StateSucceeded}, e.states)
	assert.Len(t, e.chain.Sent(), 2)
}

func TestLoanSkipsApprovalWhenApproved(t *testing.T) {
	e := newEnv(t, nil)
	m := e.markets[mintID]
	res := e.orchestrator(t).Loan(context.Background(), m, types.ActionBorrowMore, createParams())

	require.True(t, res.Succeeded(), res.ErrorDetail)
	assert.Empty(t, res.ApproveHashes)
	assert.Equal(t, 1, m.Calls("borrowMore.isApproved"))
	assert.Equal(t, 0, m.Calls("borrowMore.approve"))
	assert.Equal(t, []State{StateSubmitting, StateConfirming, StateSucceeded}, e.states)
}

func TestLoanFailures(t *testing.T) {
	tests := []struct {
		name      string
		failures  map[string]string
		expected  string
		approvals int
		hash      bool
		submitted bool
	}{
		{
			name:      "approval rejected by wallet",
			failures:  map[string]string{"createLoan.approve": "user rejected action"},
			expected:  types.ErrCodeUserRejected,
			approvals: 0,
		},
		{
			name:     "approval check fails",
			failures: map[string]string{"createLoan.isApproved": "rpc unavailable"},
			expected: types.ErrCodeStepApprove,
		},
		{
			name:      "approval reverts",
			failures:  map[string]string{"confirm.createLoan.approve": "execution reverted"},
			expected:  types.ErrCodeStepApprove,
			approvals: 1,
		},
		{
			name:      "submit fails",
			failures:  map[string]string{"createLoan.execute": "insufficient funds"},
			expected:  types.ErrCodeStep,
			approvals: 1,
			submitted: true,
		},
		{
			name:      "transaction reverts",
			failures:  map[string]string{"confirm.createLoan": "execution reverted: Debt too high"},
			expected:  types.ErrCodeStep,
			approvals: 1,
			hash:      true,
			submitted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, map[string]map[string]string{lendID: tt.failures})
			m := e.markets[lendID]
			res := e.orchestrator(t).Loan(context.Background(), m, types.ActionCreateLoan, createParams())

			assert.False(t, res.Succeeded())
			assert.Equal(t, tt.expected, res.Error)
			assert.NotEmpty(t, res.ErrorDetail)
			assert.Len(t, res.ApproveHashes, tt.approvals)
			assert.Equal(t, tt.hash, res.Hash != "")
			if tt.submitted {
				assert.Equal(t, 1, m.Calls("createLoan.execute"))
			} else {
				assert.Equal(t, 0, m.Calls("createLoan.execute"))
			}
			require.NotEmpty(t, e.states)
			assert.Equal(t, StateFailed, e.states[len(e.states)-1])
		})
	}
}

func TestRemoveCollateralNeedsNoApproval(t *testing.T) {
	e := newEnv(t, nil)
	m := e.markets[lendID]
	p := sdk.LoanParams{User: borrower, Collateral: decimal.NewFromInt(1)}
	res := e.orchestrator(t).Loan(context.Background(), m, types.ActionRemoveCollateral, p)

	require.True(t, res.Succeeded(), res.ErrorDetail)
	assert.Equal(t, 0, m.Calls("removeCollateral.isApproved"))
	assert.Equal(t, lendID+".removeCollateral", e.label(t, res.Hash))
}

func TestLoanLeverage(t *testing.T) {
	e := newEnv(t, nil)
	m := e.markets[mintID]
	p := createParams()
	p.Borrowed = decimal.NewFromInt(500)
	p.Slippage = decimal.RequireFromString("0.1")

	res := e.orchestrator(t).LoanLeverage(context.Background(), m, types.ActionCreateLoan, p)
	require.True(t, res.Succeeded(), res.ErrorDetail)
	assert.Equal(t, mintID+".leverageV2.createLoan", e.label(t, res.Hash))

	noLeverage := e.markets["one-way-market-1"]
	res = e.orchestrator(t).LoanLeverage(context.Background(), noLeverage, types.ActionCreateLoan, p)
	assert.Equal(t, types.ErrCodeStep, res.Error)
	assert.Equal(t, sdk.ErrUnsupported.Error(), res.ErrorDetail)
}

func TestApproveLoanLeverageReportsEveryHash(t *testing.T) {
	e := newEnv(t, nil)
	res := e.orchestrator(t).ApproveLoanLeverage(context.Background(), e.markets[mintID], types.ActionCreateLoan, createParams())
	require.True(t, res.Succeeded(), res.ErrorDetail)
	require.Len(t, res.Hashes, 2)
	assert.Equal(t, mintID+".leverageV2.createLoan.approve.collateral", e.label(t, res.Hashes[0]))
	assert.Equal(t, mintID+".leverageV2.createLoan.approve.borrowed", e.label(t, res.Hashes[1]))

	failing := newEnv(t, map[string]map[string]string{
		mintID: {"confirm.leverageV2.createLoan.approve.borrowed": "execution reverted"},
	})
	res = failing.orchestrator(t).ApproveLoanLeverage(context.Background(), failing.markets[mintID], types.ActionCreateLoan, createParams())
	assert.Equal(t, types.ErrCodeStepApprove, res.Error)
	assert.Len(t, res.Hashes, 2, "hashes are kept for display")
	assert.Contains(t, res.ErrorDetail, "execution reverted")
}

func TestApproveLoanWithoutAllowance(t *testing.T) {
	e := newEnv(t, nil)
	p := sdk.LoanParams{User: borrower, Collateral: decimal.NewFromInt(1)}
	res := e.orchestrator(t).ApproveLoan(context.Background(), e.markets[lendID], types.ActionRemoveCollateral, p)
	assert.Equal(t, types.ErrCodeStepApprove, res.Error)
	assert.Empty(t, res.Hashes)
}

func TestVault(t *testing.T) {
	t.Run("deposit approves first", func(t *testing.T) {
		e := newEnv(t, nil)
		res := e.orchestrator(t).Vault(context.Background(), e.markets[lendID], types.VaultDeposit, decimal.NewFromInt(100))
		require.True(t, res.Succeeded(), res.ErrorDetail)
		assert.Len(t, res.ApproveHashes, 1)
		assert.Equal(t, lendID+".vault.deposit", e.label(t, res.Hash))
	})

	t.Run("unstake has no approval", func(t *testing.T) {
		e := newEnv(t, nil)
		m := e.markets[lendID]
		res := e.orchestrator(t).Vault(context.Background(), m, types.VaultUnstake, decimal.NewFromInt(10))
		require.True(t, res.Succeeded(), res.ErrorDetail)
		assert.Equal(t, 0, m.Calls("vault.unstake.isApproved"))
	})

	codes := []struct {
		op       types.VaultOp
		expected string
	}{
		{types.VaultDeposit, types.ErrCodeStepDeposit},
		{types.VaultMint, types.ErrCodeStepDeposit},
		{types.VaultStake, types.ErrCodeStepDeposit},
		{types.VaultWithdraw, types.ErrCodeStepDeposit},
		{types.VaultUnstake, types.ErrCodeStepDeposit},
		{types.VaultRedeem, types.ErrCodeStep},
	}
	for _, c := range codes {
		t.Run(string(c.op)+" failure code", func(t *testing.T) {
			e := newEnv(t, map[string]map[string]string{
				lendID: {"vault." + string(c.op) + ".execute": "execution reverted"},
			})
			m := e.markets[lendID]
			res := e.orchestrator(t).Vault(context.Background(), m, c.op, decimal.NewFromInt(1))
			assert.Equal(t, c.expected, res.Error)
		})
	}

	t.Run("no vault", func(t *testing.T) {
		e := newEnv(t, nil)
		res := e.orchestrator(t).Vault(context.Background(), e.markets[mintID], types.VaultDeposit, decimal.NewFromInt(1))
		assert.Equal(t, types.ErrCodeStepDeposit, res.Error)
	})
}

func TestVaultWithdrawFull(t *testing.T) {
	e := newEnv(t, nil)
	m := e.markets[lendID]
	res := e.orchestrator(t).VaultWithdraw(context.Background(), m, borrower, decimal.Zero, true)

	require.True(t, res.Succeeded(), res.ErrorDetail)
	assert.Equal(t, lendID+".vault.redeem", e.label(t, res.Hash))
	assert.Equal(t, 1, m.Calls("vault.redeem.max"))
	assert.Equal(t, 0, m.Calls("vault.withdraw.execute"))

	partial := e.orchestrator(t).VaultWithdraw(context.Background(), m, borrower, decimal.NewFromInt(5), false)
	require.True(t, partial.Succeeded(), partial.ErrorDetail)
	assert.Equal(t, lendID+".vault.withdraw", e.label(t, partial.Hash))
}

func TestClaims(t *testing.T) {
	e := newEnv(t, map[string]map[string]string{lendID: {"vault.claimRewards": "nothing to claim"}})
	o := e.orchestrator(t)

	res := o.ClaimCrv(context.Background(), e.markets[lendID])
	require.True(t, res.Succeeded(), res.ErrorDetail)
	assert.Equal(t, lendID+".vault.claimCrv", e.label(t, res.Hash))

	res = o.ClaimRewards(context.Background(), e.markets[lendID])
	assert.Equal(t, types.ErrCodeStepClaim, res.Error)
	assert.Equal(t, "nothing to claim", res.ErrorDetail)

	res = o.ClaimCrv(context.Background(), e.markets[mintID])
	assert.Equal(t, types.ErrCodeStepClaim, res.Error)
}

func TestConfirmTimeout(t *testing.T) {
	e := newEnv(t, nil)
	o := New(fixture.NewProvider(e.chain, time.Second), zaptest.NewLogger(t), WithConfirmTimeout(10*time.Millisecond))

	res := o.Loan(context.Background(), e.markets[mintID], types.ActionAddCollateral, createParams())
	assert.Equal(t, types.ErrCodeStep, res.Error)
	assert.Contains(t, res.ErrorDetail, context.DeadlineExceeded.Error())
	assert.NotEmpty(t, res.Hash)
}

func TestTxMetrics(t *testing.T) {
	tm := metrics.NewTxMetrics("test", prometheus.NewRegistry())
	e := newEnv(t, map[string]map[string]string{lendID: {"confirm.createLoan": "execution reverted"}})
	o := e.orchestrator(t, WithMetrics(tm))

	o.Loan(context.Background(), e.markets[lendID], types.ActionCreateLoan, createParams())

	assert.Equal(t, float64(1), testutil.ToFloat64(tm.Steps.WithLabelValues("createLoan", "approve", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(tm.Steps.WithLabelValues("createLoan", "submit", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(tm.Steps.WithLabelValues("createLoan", "confirm", "error")))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "approving", StateApproving.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
