package cmd

import (
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/llamalend/quote"
)

var sweepFlags loanFlags

var sweepCmd = &cobra.Command{
	Use:   "sweep <market>",
	Short: "Sweep every band count for a new loan",
	Long: `Compute the max borrowable amount, band range and liquidation prices for
every allowed band count of a new loan in one pass. With --leverage the
sweep uses the market's leverage route.`,
	Args: cobra.ExactArgs(1),
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
		in, err := sweepFlags.input()
		if err != nil {
			return err
		}

		var res quote.SweepResult
		if sweepFlags.leverage {
			res = a.quotes.LiqRangesLeverage(ctx, m, in)
		} else {
			res = a.quotes.LiqRanges(ctx, m, in)
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepFlags.bind(sweepCmd.Flags())
}
