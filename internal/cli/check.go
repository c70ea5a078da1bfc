package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"yield-rebalancer/internal/app"
)

var (
	checkTokenIn     string
	checkTokenOut    string
	checkSymbolIn    string
	checkSymbolOut   string
	checkAmount      float64
	checkSlippageBps int64
	checkExactOutput bool
	checkFrom        string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run the swap safety pipeline for one candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkAmount <= 0 {
			return errors.New("--amount must be greater than zero")
		}

		opts := app.CheckOptions{
			TokenIn:        checkTokenIn,
			TokenOut:       checkTokenOut,
			TokenInSymbol:  checkSymbolIn,
			TokenOutSymbol: checkSymbolOut,
			AmountIn:       checkAmount,
			SlippageBps:    checkSlippageBps,
			ExactOutput:    checkExactOutput,
			FromAddress:    checkFrom,
		}

		return getApp().Check(cmd.Context(), opts)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkTokenIn, "token-in", "", "Input token address")
	checkCmd.Flags().StringVar(&checkTokenOut, "token-out", "", "Output token address")
	checkCmd.Flags().StringVar(&checkSymbolIn, "symbol-in", "", "Input token symbol for oracle lookup")
	checkCmd.Flags().StringVar(&checkSymbolOut, "symbol-out", "", "Output token symbol for oracle lookup")
	checkCmd.Flags().Float64Var(&checkAmount, "amount", 0, "Input amount in token units")
	checkCmd.Flags().Int64Var(&checkSlippageBps, "slippage-bps", -1, "Slippage tolerance override in bps (defaults to config)")
	checkCmd.Flags().BoolVar(&checkExactOutput, "exact-output", false, "Bound the maximum input instead of the minimum output")
	checkCmd.Flags().StringVar(&checkFrom, "from", "", "Trader address (defaults to config)")
}
