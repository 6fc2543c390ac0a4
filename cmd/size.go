package cmd

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/backrunner/strategies/arbitrage"

	"github.com/spf13/cobra"
)

var sizeFlags struct {
	a0, a1, b0, b1 string
	feeBps         int64
}

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Compute the optimal backrun input for two pools offline",
	Long: `Computes the amount of the routed asset to swap into pool A and back
through pool B. Role 1 is the routed asset, role 0 the intermediate one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := parseReserves(sizeFlags.a0, sizeFlags.a1)
		if err != nil {
			return fmt.Errorf("pool a: %w", err)
		}
		b, err := parseReserves(sizeFlags.b0, sizeFlags.b1)
		if err != nil {
			return fmt.Errorf("pool b: %w", err)
		}
		fee := arbitrage.FeeFromBps(sizeFlags.feeBps)

		out := cmd.OutOrStdout()
		amount, err := arbitrage.OptimalInput(a, b, fee)
		if errors.Is(err, arbitrage.ErrNoOpportunity) {
			fmt.Fprintln(out, "no opportunity")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "amount_in: %s\n", amount)
		fmt.Fprintf(out, "profit:    %s\n", arbitrage.ExpectedProfit(amount, a, b, fee))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sizeCmd)
	sizeCmd.Flags().StringVar(&sizeFlags.a0, "a0", "", "pool A reserve of the intermediate asset")
	sizeCmd.Flags().StringVar(&sizeFlags.a1, "a1", "", "pool A reserve of the routed asset")
	sizeCmd.Flags().StringVar(&sizeFlags.b0, "b0", "", "pool B reserve of the intermediate asset")
	sizeCmd.Flags().StringVar(&sizeFlags.b1, "b1", "", "pool B reserve of the routed asset")
	sizeCmd.Flags().Int64Var(&sizeFlags.feeBps, "fee-bps", 30, "swap fee in basis points")
	for _, name := range []string{"a0", "a1", "b0", "b1"} {
		_ = sizeCmd.MarkFlagRequired(name)
	}
}

func parseReserves(role0, role1 string) (arbitrage.Reserves, error) {
	r0, ok := new(big.Int).SetString(role0, 10)
	if !ok {
		return arbitrage.Reserves{}, fmt.Errorf("invalid reserve %q", role0)
	}
	r1, ok := new(big.Int).SetString(role1, 10)
	if !ok {
		return arbitrage.Reserves{}, fmt.Errorf("invalid reserve %q", role1)
	}
	return arbitrage.Reserves{Role0: r0, Role1: r1}, nil
}
