package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/gas"
	"yield-rebalancer/internal/markets"
	"yield-rebalancer/internal/profit"
	"yield-rebalancer/internal/service"
)

// SimulateAlert exercises the full decision and alert flow against a
// synthetic two-market snapshot, without touching the chain or a DEX.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	g, err := a.newGuard()
	if err != nil {
		return err
	}

	pricer := &gas.Static{
		GasPriceWei: decimal.New(30, 9),
		NativeUSD:   decimal.NewFromInt(3000),
	}
	engine, err := a.newEngine(g, pricer)
	if err != nil {
		return err
	}

	source := &staticMarketsSource{snapshot: []markets.Market{
		{
			Protocol:  a.Config.Position.Protocol,
			Token:     a.Config.Position.Token,
			SupplyAPY: decimal.NewFromFloat(opts.CurrentAPY),
		},
		{
			Protocol:  "simulated",
			Token:     a.Config.Position.Token,
			SupplyAPY: decimal.NewFromFloat(opts.TargetAPY),
		},
	}}

	// Same token on both sides, so no swap pipeline is needed.
	svc := service.New(a.Config, nil, source, engine, nil, nil, notifier, a.Logger)

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.ProcessBucket(ctx, bucket)
}

type staticMarketsSource struct {
	snapshot []markets.Market
}

func (s *staticMarketsSource) Snapshot(ctx context.Context) ([]markets.Market, error) {
	return s.snapshot, nil
}

var _ markets.Source = (*staticMarketsSource)(nil)
var _ profit.GasPricer = (*gas.Static)(nil)
