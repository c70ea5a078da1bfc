package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"yield-rebalancer/internal/app"
)

var (
	simulateCurrentAPY float64
	simulateTargetAPY  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a rebalance decision and trigger the alert flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCurrentAPY < 0 || simulateTargetAPY <= 0 {
			return errors.New("--current-apy must not be negative and --target-apy must be greater than zero")
		}

		opts := app.SimulateOptions{
			CurrentAPY: simulateCurrentAPY,
			TargetAPY:  simulateTargetAPY,
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateCurrentAPY, "current-apy", 0, "Simulated current supply APY in percent")
	simulateCmd.Flags().Float64Var(&simulateTargetAPY, "target-apy", 0, "Simulated target supply APY in percent")
}
