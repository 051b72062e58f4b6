package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/llamalend/quote"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

// loanQuoteReport holds every quote of one loan action. Quotes that do not
// apply to the action are omitted.
type loanQuoteReport struct {
	Market      string                   `json:"market"`
	Action      types.Action             `json:"action"`
	Leverage    bool                     `json:"leverage"`
	MaxRecv     interface{}              `json:"maxRecv,omitempty"`
	Detail      interface{}              `json:"detail,omitempty"`
	Estimate    quote.EstimateResult     `json:"estimate"`
	MaxLeverage *quote.MaxLeverageResult `json:"maxLeverage,omitempty"`
}

type vaultQuoteReport struct {
	Market   string                  `json:"market"`
	Op       types.VaultOp           `json:"op"`
	Max      *quote.VaultMaxResult   `json:"max,omitempty"`
	Detail   quote.VaultDetailResult `json:"detail"`
	Estimate quote.EstimateResult    `json:"estimate"`
}

var (
	quoteLoanFlags  loanFlags
	quoteVaultFlags vaultFlags
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Quote an action before sending it",
}

var quoteLoanCmd = &cobra.Command{
	Use:   "loan <market> <action>",
	Short: "Quote a loan action",
	Long: `Quote a loan action: the max amount receivable, the projected health,
bands, prices and rates, and the gas of the next step. Actions are
createLoan, borrowMore, repay, fullRepay, addCollateral, removeCollateral
and selfLiquidate; createLoan, borrowMore and repay accept --leverage.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		m, err := a.market(args[0])
		if err != nil {
			return err
		}
		action, err := parseAction(args[1])
		if err != nil {
			return err
		}
		in, err := quoteLoanFlags.input()
		if err != nil {
			return err
		}
		if action == types.ActionFullRepay {
			action, in.IsFullRepay = types.ActionRepay, true
		}

		var report loanQuoteReport
		if quoteLoanFlags.leverage {
			report, err = quoteLeveraged(ctx, a.quotes, m, action, in)
		} else {
			report, err = quotePlain(ctx, a.quotes, m, action, in)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

// parallel runs fns concurrently and waits for all of them
func parallel(fns ...func()) {
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		go func(fn func()) {
			defer wg.Done()
			fn()
		}(fn)
	}
	wg.Wait()
}

func quotePlain(ctx context.Context, e *quote.Engine, m sdk.Market, action types.Action, in quote.Input) (loanQuoteReport, error) {
	report := loanQuoteReport{Market: m.Info().ID, Action: action}
	estimate := func() { report.Estimate = e.EstimateGasAndApproval(ctx, m, action, in) }

	switch action {
	case types.ActionCreateLoan:
		parallel(
			func() { report.MaxRecv = e.MaxRecv(ctx, m, action, in) },
			func() { report.Detail = e.CreateLoanDetail(ctx, m, in) },
			estimate)
	case types.ActionBorrowMore:
		parallel(
			func() { report.MaxRecv = e.MaxRecv(ctx, m, action, in) },
			func() { report.Detail = e.BorrowMoreDetail(ctx, m, in) },
			estimate)
	case types.ActionRepay:
		parallel(
			func() { report.Detail = e.RepayDetail(ctx, m, in) },
			estimate)
	case types.ActionAddCollateral:
		parallel(
			func() { report.Detail = e.AddCollateralDetail(ctx, m, in) },
			estimate)
	case types.ActionRemoveCollateral:
		parallel(
			func() { report.MaxRecv = e.MaxRemovable(ctx, m, in) },
			func() { report.Detail = e.RemoveCollateralDetail(ctx, m, in) },
			estimate)
	case types.ActionSelfLiquidate:
		parallel(
			func() { report.Detail = e.SelfLiquidateDetail(ctx, m, in) },
			estimate)
	default:
		return report, fmt.Errorf("action %s has no quote", action)
	}
	return report, nil
}

func quoteLeveraged(ctx context.Context, e *quote.Engine, m sdk.Market, action types.Action, in quote.Input) (loanQuoteReport, error) {
	report := loanQuoteReport{Market: m.Info().ID, Action: action, Leverage: true}
	estimate := func() { report.Estimate = e.EstimateGasAndApprovalLeverage(ctx, m, action, in) }
	maxLeverage := func() {
		res := e.MaxLeverage(ctx, m, in.N)
		report.MaxLeverage = &res
	}

	switch action {
	case types.ActionCreateLoan:
		parallel(
			func() { report.MaxRecv = e.MaxRecvLeverage(ctx, m, action, in) },
			func() { report.Detail = e.CreateLoanDetailLeverage(ctx, m, in) },
			estimate, maxLeverage)
	case types.ActionBorrowMore:
		parallel(
			func() { report.MaxRecv = e.MaxRecvLeverage(ctx, m, action, in) },
			func() { report.Detail = e.BorrowMoreDetailLeverage(ctx, m, in) },
			estimate)
	case types.ActionRepay:
		parallel(
			func() { report.Detail = e.RepayDetailLeverage(ctx, m, in) },
			estimate)
	default:
		return report, fmt.Errorf("action %s has no leveraged quote", action)
	}
	return report, nil
}

var quoteVaultCmd = &cobra.Command{
	Use:   "vault <market> <op>",
	Short: "Quote a vault operation",
	Long: `Quote a vault operation: the most the user can move, a preview of the
result with the lending rates after it, and the gas of the next step.
Operations are deposit, mint, withdraw, redeem, stake and unstake.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		m, err := a.market(args[0])
		if err != nil {
			return err
		}
		op, err := parseVaultOp(args[1])
		if err != nil {
			return err
		}
		user, amount, err := quoteVaultFlags.parse()
		if err != nil {
			return err
		}

		report := vaultQuoteReport{Market: m.Info().ID, Op: op}
		fns := []func(){
			func() { report.Detail = a.quotes.VaultDetail(ctx, m, op, amount) },
			func() { report.Estimate = a.quotes.VaultEstimateGasAndApproval(ctx, m, op, amount) },
		}
		if quoteVaultFlags.user != "" {
			fns = append(fns, func() {
				res := a.quotes.VaultMax(ctx, m, op, user)
				report.Max = &res
			})
		}
		parallel(fns...)
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.AddCommand(quoteLoanCmd, quoteVaultCmd)
	quoteLoanFlags.bind(quoteLoanCmd.Flags())
	quoteVaultFlags.bind(quoteVaultCmd.Flags())
}
