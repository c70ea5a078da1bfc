package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/pipeline"
)

// Check runs the swap safety pipeline once in dry-run mode and prints the
// per-stage outcome.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	if opts.AmountIn <= 0 {
		return errors.New("--amount must be greater than zero")
	}
	if opts.TokenIn == "" || opts.TokenOut == "" {
		return errors.New("--token-in and --token-out addresses are required")
	}

	g, err := a.newGuard()
	if err != nil {
		return err
	}

	prices := a.newOracle()
	estimator, err := a.newEstimator(prices)
	if err != nil {
		return err
	}

	pipe, err := a.newPipeline(g, prices, estimator, a.newSimulator())
	if err != nil {
		return err
	}

	from := opts.FromAddress
	if from == "" {
		from = a.Config.Position.FromAddress
	}

	result, err := pipe.ExecuteSwap(ctx, pipeline.SwapRequest{
		TokenIn:        opts.TokenIn,
		TokenOut:       opts.TokenOut,
		TokenInSymbol:  opts.TokenInSymbol,
		TokenOutSymbol: opts.TokenOutSymbol,
		AmountIn:       decimal.NewFromFloat(opts.AmountIn),
		FromAddress:    from,
		DryRun:         true,
		SlippageBps:    opts.SlippageBps,
		ExactOutput:    opts.ExactOutput,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, pipeline.Summarize(result.Checks))
	fmt.Fprintln(os.Stdout)

	if result.Quote != nil {
		fmt.Fprintf(os.Stdout, "execution price:  %s\n", result.Quote.ExecutionPrice.StringFixed(6))
	}
	if !result.OraclePrice.IsZero() {
		fmt.Fprintf(os.Stdout, "oracle price:     %s\n", result.OraclePrice.StringFixed(6))
		fmt.Fprintf(os.Stdout, "price impact:     %s%%\n", result.PriceImpactPct.StringFixed(4))
	}
	if opts.ExactOutput {
		fmt.Fprintf(os.Stdout, "max amount in:    %s\n", result.MaxAmountIn.StringFixed(6))
	} else {
		fmt.Fprintf(os.Stdout, "min amount out:   %s\n", result.MinAmountOut.StringFixed(6))
	}
	fmt.Fprintf(os.Stdout, "slippage:         %d bps\n", result.SlippageBps)
	fmt.Fprintf(os.Stdout, "deadline (unix):  %d\n", result.Deadline)
	fmt.Fprintf(os.Stdout, "gas estimate:     %d units @ %s wei\n", result.GasEstimate, result.GasPriceWei.StringFixed(0))
	if result.Approval.Required {
		fmt.Fprintf(os.Stdout, "approval:         REQUIRED ($%s >= $%s)\n",
			result.Approval.TradeUSD.StringFixed(2), result.Approval.ThresholdUSD.StringFixed(2))
	}
	fmt.Fprintf(os.Stdout, "overall:          %v\n", result.Success)

	return nil
}
