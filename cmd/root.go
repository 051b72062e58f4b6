package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/llamalend/config"
	"github.com/michaelpento.lv/llamalend/utils"
)

var (
	cfgFile     string
	debug       bool
	fixturePath string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "llamalend",
	Short: "Read, quote and submit LLAMMA lending actions",
	Long: `A CLI over a set of LLAMMA lending markets. It aggregates market and
user facts concurrently, quotes loan and vault actions before they are
sent, and runs the approve, submit and confirm sequence of every action.

Markets are read from a fixture file; the bundled sample markets are used
when none is configured.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.llamalend.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", "", "market fixture file (default is the bundled sample markets)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "serve prometheus metrics on this address")
}

func initConfig() {
	_ = config.LoadEnv()
	utils.InitLogger(debug)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
