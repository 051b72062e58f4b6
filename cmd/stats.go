package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/market"
)

var (
	statsGroups []string
	statsWatch  time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats [market...]",
	Short: "Aggregate market facts",
	Long: `Fetch market fact groups for every market, or for the markets given as
arguments. Each group runs as its own bounded batch; a market that fails
gets a fallback value and an error code while the rest still resolve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		markets, err := a.selectMarkets(args)
		if err != nil {
			return err
		}
		groups, err := parseGroups(statsGroups)
		if err != nil {
			return err
		}

		fetch := func() error {
			snap := a.stats.Fetch(ctx, markets, groups...)
			a.batchSummary(groupNames(groups)...)
			return printJSON(cmd.OutOrStdout(), snap)
		}
		if err := fetch(); err != nil {
			return err
		}
		if statsWatch <= 0 {
			return nil
		}

		ticker := time.NewTicker(statsWatch)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				a.logger.Info("Stopped watching markets")
				return nil
			case <-ticker.C:
				if err := fetch(); err != nil {
					a.logger.Error("Failed to write snapshot", zap.Error(err))
				}
			}
		}
	},
}

func parseGroups(names []string) ([]market.Group, error) {
	out := make([]market.Group, 0, len(names))
	for _, n := range names {
		g, err := market.ParseGroup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func groupNames(groups []market.Group) []string {
	if len(groups) == 0 {
		groups = market.AllGroups
	}
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, string(g))
	}
	return out
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringSliceVar(&statsGroups, "group", nil, "fact groups to fetch (default is every group)")
	statsCmd.Flags().DurationVar(&statsWatch, "watch", 0, "refetch on this interval until interrupted")
}

