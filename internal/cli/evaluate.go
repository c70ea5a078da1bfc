package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"yield-rebalancer/internal/app"
)

var (
	evalCurrentAPY float64
	evalTargetAPY  float64
	evalPosition   float64
	evalSwap       bool
	evalSwapAmount float64
	evalFeePct     float64
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a candidate rebalance and print the cost/benefit breakdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		if evalPosition <= 0 {
			return errors.New("--position must be greater than zero")
		}

		opts := app.EvaluateOptions{
			CurrentAPY:    evalCurrentAPY,
			TargetAPY:     evalTargetAPY,
			PositionUSD:   evalPosition,
			RequiresSwap:  evalSwap,
			SwapAmountUSD: evalSwapAmount,
			FeePct:        evalFeePct,
		}

		return getApp().Evaluate(cmd.Context(), opts)
	},
}

func init() {
	evaluateCmd.Flags().Float64Var(&evalCurrentAPY, "current-apy", 0, "Current supply APY in percent")
	evaluateCmd.Flags().Float64Var(&evalTargetAPY, "target-apy", 0, "Target supply APY in percent")
	evaluateCmd.Flags().Float64Var(&evalPosition, "position", 0, "Position size in USD")
	evaluateCmd.Flags().BoolVar(&evalSwap, "swap", false, "Whether the move requires a token swap")
	evaluateCmd.Flags().Float64Var(&evalSwapAmount, "swap-amount", 0, "Swap notional in USD (defaults to position)")
	evaluateCmd.Flags().Float64Var(&evalFeePct, "fee-pct", 0, "Target protocol entry/exit fee in percent")
}
