package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/alerting"
	"yield-rebalancer/internal/approval"
	"yield-rebalancer/internal/config"
	"yield-rebalancer/internal/gas"
	"yield-rebalancer/internal/guard"
	"yield-rebalancer/internal/markets"
	"yield-rebalancer/internal/oracle"
	"yield-rebalancer/internal/pipeline"
	"yield-rebalancer/internal/profit"
	"yield-rebalancer/internal/quote"
	"yield-rebalancer/internal/scheduler"
	"yield-rebalancer/internal/service"
	"yield-rebalancer/internal/simulator"
	"yield-rebalancer/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newGuard() (*guard.Guard, error) {
	return guard.New(guard.Options{
		SlippageBps:     a.Config.Guard.SlippageBps,
		MaxDeviationPct: decimal.NewFromFloat(a.Config.Guard.MaxDeviationPct),
		DeadlineSeconds: a.Config.Guard.DeadlineSeconds,
	}, a.Logger)
}

func (a *App) newOracle() oracle.PriceOracle {
	if a.Config.Ethereum.RPCURL == "" || len(a.Config.Oracle.Feeds) == 0 {
		return nil
	}
	return oracle.NewChainlink(oracle.ChainlinkOptions{
		RPCURL:          a.Config.Ethereum.RPCURL,
		Feeds:           a.Config.Oracle.Feeds,
		StalenessWindow: a.Config.Oracle.StalenessWindow,
		Strict:          a.Config.Oracle.Strict,
		Timeout:         a.Config.Oracle.RequestTimeout,
	}, a.Logger)
}

func (a *App) newEstimator(prices oracle.PriceOracle) (gas.Estimator, error) {
	if a.Config.Ethereum.RPCURL == "" || prices == nil {
		return nil, nil
	}
	return gas.NewEthEstimator(gas.EthOptions{
		RPCURL:       a.Config.Ethereum.RPCURL,
		NativeSymbol: a.Config.Ethereum.NativeSymbol,
		Timeout:      a.Config.Ethereum.RequestTimeout,
		CacheTTL:     a.Config.Oracle.GasPriceCacheTTL,
		Units:        a.gasUnitTable(),
	}, prices, a.Logger)
}

func (a *App) gasUnitTable() map[gas.Operation]int64 {
	return map[gas.Operation]int64{
		gas.OpWithdraw: a.Config.Profitability.GasWithdrawUnits,
		gas.OpApprove:  a.Config.Profitability.GasApproveUnits,
		gas.OpSwap:     a.Config.Profitability.GasSwapUnits,
		gas.OpDeposit:  a.Config.Profitability.GasDepositUnits,
	}
}

func (a *App) newEngine(g *guard.Guard, pricer profit.GasPricer) (*profit.Engine, error) {
	return profit.NewEngine(profit.Options{
		Thresholds: profit.Thresholds{
			MinAnnualGainUSD: decimal.NewFromFloat(a.Config.Profitability.MinAnnualGainUSD),
			MaxBreakEvenDays: a.Config.Profitability.MaxBreakEvenDays,
			MaxCostPct:       decimal.NewFromFloat(a.Config.Profitability.MaxCostPct),
		},
		Units: profit.GasUnits{
			Withdraw: a.Config.Profitability.GasWithdrawUnits,
			Approve:  a.Config.Profitability.GasApproveUnits,
			Swap:     a.Config.Profitability.GasSwapUnits,
			Deposit:  a.Config.Profitability.GasDepositUnits,
		},
	}, g, pricer, a.Logger)
}

func (a *App) newPipeline(g *guard.Guard, prices oracle.PriceOracle, estimator gas.Estimator, sim simulator.Simulator) (*pipeline.Pipeline, error) {
	quotes := quote.NewCowSource(quote.CowOptions{
		BaseURL:      a.Config.Quote.BaseURL,
		PriceQuality: a.Config.Quote.PriceQuality,
		Timeout:      a.Config.Quote.RequestTimeout,
		UserAgent:    a.Config.Quote.UserAgent,
	}, a.Logger)

	gate := approval.NewGate(decimal.NewFromFloat(a.Config.Approval.ThresholdUSD), a.Logger)

	return pipeline.New(pipeline.Options{
		StageTimeout:  a.Config.Pipeline.StageTimeout,
		FeeTierBps:    a.Config.Quote.FeeTierBps,
		RouterAddress: a.Config.Ethereum.RouterAddress,
	}, g, quotes, prices, estimator, gate, sim, a.Logger)
}

func (a *App) newSimulator() simulator.Simulator {
	if a.Config.Ethereum.RPCURL == "" {
		return nil
	}
	return simulator.NewEthCall(simulator.EthCallOptions{
		RPCURL:  a.Config.Ethereum.RPCURL,
		Timeout: a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
}

func (a *App) newMarketsSource() markets.Source {
	return markets.NewHTTPSource(markets.HTTPOptions{
		SourceURL: a.Config.Markets.SourceURL,
		Timeout:   a.Config.Markets.RequestTimeout,
		UserAgent: a.Config.Quote.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running rebalancing service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
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

	var pricer profit.GasPricer
	if estimator != nil {
		pricer = estimator
	}
	engine, err := a.newEngine(g, pricer)
	if err != nil {
		return err
	}

	pipe, err := a.newPipeline(g, prices, estimator, a.newSimulator())
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var decisionStore storage.DecisionStore
	if store != nil {
		decisionStore = store
	}

	svc := service.New(a.Config, sched, a.newMarketsSource(), engine, pipe, decisionStore, a.newNotifier(), a.Logger)

	a.Logger.Info().Msg("starting rebalancing service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rebalancing service stopped")
	return nil
}

// EvaluateOptions describe a one-shot profitability evaluation.
type EvaluateOptions struct {
	CurrentAPY    float64
	TargetAPY     float64
	PositionUSD   float64
	RequiresSwap  bool
	SwapAmountUSD float64
	FeePct        float64
}

// CheckOptions describe a one-shot swap safety check.
type CheckOptions struct {
	TokenIn        string
	TokenOut       string
	TokenInSymbol  string
	TokenOutSymbol string
	AmountIn       float64
	SlippageBps    int64
	ExactOutput    bool
	FromAddress    string
}

// ExportOptions hold parameters for exporting decision history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure the alert simulation.
type SimulateOptions struct {
	CurrentAPY float64
	TargetAPY  float64
}
