package cmd

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/position"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/utils"
)

type positionReport struct {
	User        string                                         `json:"user"`
	LoansExists map[string]pool.Entry[bool]                    `json:"loansExists"`
	Loans       map[string]pool.Entry[*position.LoanDetails]   `json:"loans"`
	Balances    map[string]pool.Entry[position.MarketBalances] `json:"balances"`
	Claimables  map[string]pool.Entry[position.Claimables]     `json:"claimables"`
}

func parseUser(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

var positionCmd = &cobra.Command{
	Use:   "position <user> [market...]",
	Short: "Aggregate a user's positions",
	Long: `Read a user's loans, wallet balances and claimable rewards across every
market, or across the markets given after the user. Loan details are only
fetched for markets where the user has a loan.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, err := parseUser(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		markets, err := a.selectMarkets(args[1:])
		if err != nil {
			return err
		}

		report := positionReport{User: user.Hex()}
		report.LoansExists = a.positions.FetchLoansExists(ctx, markets, user)

		withLoan := make([]sdk.Market, 0, len(markets))
		for _, m := range markets {
			if e, ok := report.LoansExists[utils.UserActiveKey(m.Info().ID, user)]; ok && e.Value {
				withLoan = append(withLoan, m)
			}
		}

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			report.Loans = a.positions.FetchLoansDetails(ctx, withLoan, user)
		}()
		go func() {
			defer wg.Done()
			report.Balances = a.positions.FetchMarketBalances(ctx, markets, user)
		}()
		go func() {
			defer wg.Done()
			report.Claimables = a.positions.FetchClaimables(ctx, markets, user)
		}()
		wg.Wait()

		a.batchSummary("loansExists", "loansDetails", "marketBalances", "claimables")
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(positionCmd)
}
