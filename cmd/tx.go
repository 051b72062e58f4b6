package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/llamalend/types"
)

var (
	txLoanFlags  loanFlags
	txVaultFlags vaultFlags
	txVaultFull  bool
	approveOnly  bool
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Send an action",
	Long: `Send a mutating action: approve when the allowance is missing, submit,
then wait for confirmation. Results carry the transaction hashes and, on
failure, a normalized error code with the underlying error text.`,
}

var txLoanCmd = &cobra.Command{
	Use:   "loan <market> <action>",
	Short: "Send a loan action",
	Args:  cobra.ExactArgs(2),
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
		in, err := txLoanFlags.input()
		if err != nil {
			return err
		}
		if action == types.ActionRepay && in.IsFullRepay && !txLoanFlags.leverage {
			action = types.ActionFullRepay
		}
		p := in.Params()

		var res interface{}
		switch {
		case approveOnly && txLoanFlags.leverage:
			res = a.orchestrator.ApproveLoanLeverage(ctx, m, action, p)
		case approveOnly:
			res = a.orchestrator.ApproveLoan(ctx, m, action, p)
		case txLoanFlags.leverage:
			res = a.orchestrator.LoanLeverage(ctx, m, action, p)
		default:
			res = a.orchestrator.Loan(ctx, m, action, p)
		}
		return printResult(cmd, res)
	},
}

var txVaultCmd = &cobra.Command{
	Use:   "vault <market> <op>",
	Short: "Send a vault operation",
	Args:  cobra.ExactArgs(2),
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
		user, amount, err := txVaultFlags.parse()
		if err != nil {
			return err
		}
		if txVaultFull && op != types.VaultWithdraw {
			return fmt.Errorf("--full only applies to withdraw")
		}

		var res interface{}
		switch {
		case approveOnly:
			res = a.orchestrator.ApproveVault(ctx, m, op, amount.OrZero())
		case op == types.VaultWithdraw:
			res = a.orchestrator.VaultWithdraw(ctx, m, user, amount.OrZero(), txVaultFull)
		default:
			res = a.orchestrator.Vault(ctx, m, op, amount.OrZero())
		}
		return printResult(cmd, res)
	},
}

var txClaimCmd = &cobra.Command{
	Use:       "claim <market> <crv|rewards>",
	Short:     "Claim gauge rewards",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"crv", "rewards"},
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

		switch args[1] {
		case "crv":
			return printResult(cmd, a.orchestrator.ClaimCrv(ctx, m))
		case "rewards":
			return printResult(cmd, a.orchestrator.ClaimRewards(ctx, m))
		default:
			return fmt.Errorf("unknown claim %q", args[1])
		}
	},
}

// outcome is implemented by both transaction result types
type outcome interface {
	Succeeded() bool
}

// printResult writes res and turns a failed action into a non-zero exit
func printResult(cmd *cobra.Command, res interface{}) error {
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if r, ok := res.(outcome); ok && !r.Succeeded() {
		return fmt.Errorf("action failed")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txLoanCmd, txVaultCmd, txClaimCmd)
	txCmd.PersistentFlags().BoolVar(&approveOnly, "approve-only", false, "only send the approvals")

	txLoanFlags.bind(txLoanCmd.Flags())
	txVaultFlags.bind(txVaultCmd.Flags())
	txVaultCmd.Flags().BoolVar(&txVaultFull, "full", false, "withdraw every share held by the user")
}
