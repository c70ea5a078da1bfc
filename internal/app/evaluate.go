package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/profit"
)

// Evaluate scores a single candidate move and prints the full cost/benefit
// breakdown. Chain prices come from the RPC estimator when configured,
// otherwise static fallbacks apply.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) error {
	if opts.PositionUSD <= 0 {
		return errors.New("--position must be greater than zero")
	}

	g, err := a.newGuard()
	if err != nil {
		return err
	}

	var pricer profit.GasPricer
	prices := a.newOracle()
	if estimator, err := a.newEstimator(prices); err != nil {
		return err
	} else if estimator != nil {
		pricer = estimator
	}

	engine, err := a.newEngine(g, pricer)
	if err != nil {
		return err
	}

	move := profit.CandidateMove{
		CurrentAPY:     decimal.NewFromFloat(opts.CurrentAPY),
		TargetAPY:      decimal.NewFromFloat(opts.TargetAPY),
		PositionUSD:    decimal.NewFromFloat(opts.PositionUSD),
		RequiresSwap:   opts.RequiresSwap,
		ProtocolFeePct: decimal.NewFromFloat(opts.FeePct),
	}
	if opts.RequiresSwap {
		if opts.SwapAmountUSD > 0 {
			move.SwapAmountUSD = decimal.NewFromFloat(opts.SwapAmountUSD)
		} else {
			move.SwapAmountUSD = move.PositionUSD
		}
	}

	result, err := engine.Evaluate(ctx, move)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, result.DetailedBreakdown)
	return nil
}
