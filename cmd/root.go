package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/michaelpento.lv/backrunner/config"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	network string
)

var rootCmd = &cobra.Command{
	Use:   "backrunner",
	Short: "An MEV-Share backrunning bot for Uniswap V2 and Sushiswap",
	Long: `A CLI bot that listens to the MEV-Share event stream for transactions
touching Uniswap V2 or Sushiswap pools and submits backrun bundles that
arbitrage the price gap against the mirror pool on the other exchange.`,
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&network, "network", "", "network preset, overrides config and NETWORK")
}

// initConfig loads ./.env before any command reads the environment.
func initConfig() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
}
