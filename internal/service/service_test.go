package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/alerting"
	"yield-rebalancer/internal/config"
	"yield-rebalancer/internal/guard"
	"yield-rebalancer/internal/markets"
	"yield-rebalancer/internal/oracle"
	"yield-rebalancer/internal/pipeline"
	"yield-rebalancer/internal/profit"
	"yield-rebalancer/internal/quote"
	"yield-rebalancer/internal/storage"
)

type fakeMarkets struct {
	snapshot []markets.Market
}

func (f *fakeMarkets) Snapshot(ctx context.Context) ([]markets.Market, error) {
	return f.snapshot, nil
}

type fakeStore struct {
	records []storage.DecisionRecord
}

func (f *fakeStore) InsertDecision(ctx context.Context, record storage.DecisionRecord) (int64, error) {
	f.records = append(f.records, record)
	return int64(len(f.records)), nil
}

func (f *fakeStore) ListRecentDecisions(ctx context.Context, limit int) ([]storage.DecisionRecord, error) {
	return f.records, nil
}

func (f *fakeStore) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]storage.DecisionRecord, error) {
	return f.records, nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	f.notes = append(f.notes, note)
	return nil
}

type fakeQuotes struct {
	amountOut   decimal.Decimal
	gasEstimate int64
}

func (f *fakeQuotes) Fetch(ctx context.Context, req quote.Request) (*quote.Quote, error) {
	return &quote.Quote{
		TokenIn:        req.TokenIn,
		TokenOut:       req.TokenOut,
		AmountIn:       req.AmountIn,
		AmountOut:      f.amountOut,
		ExecutionPrice: f.amountOut.Div(req.AmountIn),
		GasEstimate:    f.gasEstimate,
	}, nil
}

type fakeOracle struct {
	prices map[string]decimal.Decimal
}

func (f *fakeOracle) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	return f.prices[symbol], false, nil
}

func (f *fakeOracle) Strict() bool { return true }

var _ oracle.PriceOracle = (*fakeOracle)(nil)

type cheapPricer struct{}

func (cheapPricer) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	return decimal.New(1, 9), nil
}

func (cheapPricer) NativeTokenPrice(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(2000), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{DryRun: true},
		Position: config.PositionConfig{
			Protocol:   "aave",
			Token:      "USDC",
			SizeUSD:    5000,
			CurrentAPY: 3,
		},
		Alerting: config.AlertingConfig{Enabled: true, Channels: []string{"telegram"}},
	}
}

func testEngine(t *testing.T, g *guard.Guard) *profit.Engine {
	t.Helper()
	engine, err := profit.NewEngine(profit.Options{
		Thresholds: profit.Thresholds{
			MinAnnualGainUSD: decimal.NewFromInt(10),
			MaxBreakEvenDays: 180,
			MaxCostPct:       decimal.NewFromInt(1),
		},
	}, g, cheapPricer{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func testGuard(t *testing.T) *guard.Guard {
	t.Helper()
	g, err := guard.New(guard.Options{
		SlippageBps:     50,
		MaxDeviationPct: decimal.NewFromInt(2),
		DeadlineSeconds: 600,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("guard.New: %v", err)
	}
	return g
}

func TestProcessBucketProfitableNoSwap(t *testing.T) {
	g := testGuard(t)
	store := &fakeStore{}
	notifier := &fakeNotifier{}

	source := &fakeMarkets{snapshot: []markets.Market{
		{Protocol: "aave", Token: "USDC", SupplyAPY: decimal.NewFromInt(3)},
		{Protocol: "compound", Token: "USDC", SupplyAPY: decimal.NewFromInt(10)},
	}}

	svc := New(testConfig(), nil, source, testEngine(t, g), nil, store, notifier, zerolog.Nop())

	bucket := time.Now().UTC()
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected one record, got %d", len(store.records))
	}
	record := store.records[0]
	if record.Status != storage.StatusValidated {
		t.Fatalf("expected validated, got %s", record.Status)
	}
	if record.PipelineSuccess != nil {
		t.Fatal("no swap means the pipeline should not run")
	}
	if !record.Profitable {
		t.Fatal("7 point APY improvement on $5000 should be profitable")
	}
	if record.ToProtocol != "compound" {
		t.Fatalf("expected compound as target, got %s", record.ToProtocol)
	}

	if len(notifier.notes) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.notes))
	}
}

func TestProcessBucketUnprofitableIsRejectedSilently(t *testing.T) {
	g := testGuard(t)
	store := &fakeStore{}
	notifier := &fakeNotifier{}

	source := &fakeMarkets{snapshot: []markets.Market{
		{Protocol: "aave", Token: "USDC", SupplyAPY: decimal.NewFromInt(3)},
		{Protocol: "compound", Token: "USDC", SupplyAPY: decimal.NewFromFloat(3.01)},
	}}

	svc := New(testConfig(), nil, source, testEngine(t, g), nil, store, notifier, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected one record, got %d", len(store.records))
	}
	if store.records[0].Status != storage.StatusRejected {
		t.Fatalf("expected rejected, got %s", store.records[0].Status)
	}
	if len(notifier.notes) != 0 {
		t.Fatal("rejected candidates should not alert")
	}
}

func TestProcessBucketSwapRunsPipeline(t *testing.T) {
	g := testGuard(t)
	store := &fakeStore{}

	pipe, err := pipeline.New(pipeline.Options{StageTimeout: time.Second},
		g,
		&fakeQuotes{amountOut: decimal.NewFromInt(4995), gasEstimate: 180000},
		&fakeOracle{prices: map[string]decimal.Decimal{
			"USDC": decimal.NewFromInt(1),
			"DAI":  decimal.NewFromInt(1),
		}},
		nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	source := &fakeMarkets{snapshot: []markets.Market{
		{Protocol: "aave", Token: "USDC", SupplyAPY: decimal.NewFromInt(3)},
		{Protocol: "spark", Token: "DAI", SupplyAPY: decimal.NewFromInt(11)},
	}}

	svc := New(testConfig(), nil, source, testEngine(t, g), pipe, store, nil, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected one record, got %d", len(store.records))
	}
	record := store.records[0]
	if record.PipelineSuccess == nil || !*record.PipelineSuccess {
		t.Fatal("pipeline should have run and passed")
	}
	if record.Status != storage.StatusValidated {
		t.Fatalf("expected validated, got %s", record.Status)
	}
	if len(record.Checks) == 0 {
		t.Fatal("checks should be journaled")
	}
}

func TestPickCandidateSkipsCurrentMarket(t *testing.T) {
	svc := New(testConfig(), nil, nil, nil, nil, nil, nil, zerolog.Nop())

	snapshot := []markets.Market{
		{Protocol: "aave", Token: "USDC", SupplyAPY: decimal.NewFromInt(9)},
		{Protocol: "compound", Token: "USDC", SupplyAPY: decimal.NewFromInt(7)},
		{Protocol: "spark", Token: "USDC", SupplyAPY: decimal.NewFromInt(8)},
	}

	current, target, ok := svc.pickCandidate(snapshot)
	if !ok {
		t.Fatal("alternatives exist")
	}
	if current.Protocol != "aave" {
		t.Fatalf("expected aave as current, got %s", current.Protocol)
	}
	if target.Protocol != "spark" {
		t.Fatalf("expected highest alternative spark, got %s", target.Protocol)
	}
}

var _ markets.Source = (*fakeMarkets)(nil)
var _ storage.DecisionStore = (*fakeStore)(nil)
var _ alerting.Notifier = (*fakeNotifier)(nil)
var _ quote.Source = (*fakeQuotes)(nil)
