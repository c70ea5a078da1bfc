package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/approval"
	"yield-rebalancer/internal/gas"
	"yield-rebalancer/internal/guard"
	"yield-rebalancer/internal/quote"
	"yield-rebalancer/internal/simulator"
)

type fakeQuoteSource struct {
	quote *quote.Quote
	err   error
}

func (f *fakeQuoteSource) Fetch(ctx context.Context, req quote.Request) (*quote.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

type fakePrice struct {
	price decimal.Decimal
	stale bool
}

type fakeOracle struct {
	prices map[string]fakePrice
	strict bool
	err    error
}

func (f *fakeOracle) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	if f.err != nil {
		return decimal.Decimal{}, false, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, false, fmt.Errorf("no feed for %s", symbol)
	}
	return p.price, p.stale, nil
}

func (f *fakeOracle) Strict() bool {
	return f.strict
}

type failingEstimator struct{}

func (failingEstimator) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("rpc unavailable")
}

func (failingEstimator) NativeTokenPrice(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("rpc unavailable")
}

func (failingEstimator) Units(op gas.Operation) int64 {
	return gas.DefaultUnits[op]
}

func testGuard(t *testing.T) *guard.Guard {
	t.Helper()
	g, err := guard.New(guard.Options{SlippageBps: 50, MaxDeviationPct: decimal.NewFromInt(2)}, zerolog.Nop())
	if err != nil {
		t.Fatalf("guard.New: %v", err)
	}
	return g
}

func goodQuote() *quote.Quote {
	amountIn := decimal.NewFromInt(1000)
	amountOut := decimal.NewFromInt(999)
	return &quote.Quote{
		TokenIn:        "0xin",
		TokenOut:       "0xout",
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		ExecutionPrice: amountOut.Div(amountIn),
		GasEstimate:    180000,
	}
}

func stableOracle(strict bool) *fakeOracle {
	return &fakeOracle{
		strict: strict,
		prices: map[string]fakePrice{
			"USDC": {price: decimal.NewFromInt(1)},
			"DAI":  {price: decimal.NewFromInt(1)},
		},
	}
}

func newPipeline(t *testing.T, quotes quote.Source, prices *fakeOracle, estimator gas.Estimator, gate *approval.Gate, sim simulator.Simulator) *Pipeline {
	t.Helper()
	p, err := New(
		Options{StageTimeout: time.Second, FeeTierBps: 30, RouterAddress: "0xrouter"},
		testGuard(t), quotes, prices, estimator, gate, sim, zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func baseRequest() SwapRequest {
	return SwapRequest{
		TokenIn:        "0xin",
		TokenOut:       "0xout",
		TokenInSymbol:  "USDC",
		TokenOutSymbol: "DAI",
		AmountIn:       decimal.NewFromInt(1000),
		FromAddress:    "0xme",
		DryRun:         true,
		SlippageBps:    -1,
	}
}

func TestExecuteSwapHappyPath(t *testing.T) {
	estimator := &gas.Static{
		GasPriceWei: decimal.New(20, 9),
		NativeUSD:   decimal.NewFromInt(3000),
	}
	gate := approval.NewGate(decimal.NewFromInt(500), zerolog.Nop())
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, stableOracle(true), estimator, gate, &simulator.Static{})

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, checks: %s", Summarize(result.Checks))
	}
	for _, name := range []CheckName{CheckQuote, CheckOraclePrice, CheckPriceDeviation, CheckSlippageProtection, CheckGasEstimation, CheckApproval, CheckSimulation, CheckOverall} {
		passed, reached := result.Checks.Result(name)
		if !reached || !passed {
			t.Fatalf("check %s should pass, reached=%v passed=%v", name, reached, passed)
		}
	}

	// 50 bps off the quoted 999 output.
	want := decimal.RequireFromString("994.005")
	if !result.MinAmountOut.Equal(want) {
		t.Fatalf("expected min out %s, got %s", want, result.MinAmountOut)
	}
	if result.PriceImpactPct.Sign() >= 0 {
		t.Fatalf("execution below oracle should have negative impact, got %s", result.PriceImpactPct)
	}
	if !result.Approval.Required {
		t.Fatal("a $1000 trade against a $500 threshold must require approval")
	}
	if result.Deadline <= time.Now().Unix() {
		t.Fatal("deadline must be in the future")
	}
	if !result.GasPriceWei.Equal(decimal.New(20, 9)) {
		t.Fatalf("expected estimator gas price, got %s", result.GasPriceWei)
	}
}

func TestExecuteSwapQuoteFailureShortCircuits(t *testing.T) {
	p := newPipeline(t, &fakeQuoteSource{err: errors.New("no liquidity")}, stableOracle(true), nil, nil, nil)

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if result.Success {
		t.Fatal("quote failure must fail the run")
	}
	if passed, reached := result.Checks.Result(CheckQuote); !reached || passed {
		t.Fatal("quote check must be reached and failed")
	}
	if _, reached := result.Checks.Result(CheckOraclePrice); reached {
		t.Fatal("later stages must not run after a quote failure")
	}
	if !strings.Contains(result.Error, "no liquidity") {
		t.Fatalf("error should carry the collaborator failure, got %q", result.Error)
	}
}

func TestExecuteSwapPriceDeviationFails(t *testing.T) {
	// Quoted execution price 0.999 against a reference of 1.05 is a ~4.9%
	// deviation, past the 2% tolerance.
	prices := &fakeOracle{
		strict: true,
		prices: map[string]fakePrice{
			"USDC": {price: decimal.RequireFromString("1.05")},
			"DAI":  {price: decimal.NewFromInt(1)},
		},
	}
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, prices, nil, nil, nil)

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if result.Success {
		t.Fatal("excessive deviation must fail the run")
	}
	if passed, reached := result.Checks.Result(CheckPriceDeviation); !reached || passed {
		t.Fatal("price deviation check must be reached and failed")
	}
	if _, reached := result.Checks.Result(CheckSlippageProtection); reached {
		t.Fatal("slippage stage must not run after a deviation failure")
	}
	if !strings.Contains(result.Error, "%") {
		t.Fatalf("error should name the observed deviation, got %q", result.Error)
	}
}

func TestExecuteSwapStaleOracleStrict(t *testing.T) {
	prices := stableOracle(true)
	prices.prices["USDC"] = fakePrice{price: decimal.NewFromInt(1), stale: true}
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, prices, nil, nil, nil)

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if result.Success {
		t.Fatal("stale oracle in strict mode must fail the run")
	}
	if _, reached := result.Checks.Result(CheckPriceDeviation); reached {
		t.Fatal("strict staleness must short-circuit before deviation")
	}
}

func TestExecuteSwapStaleOracleLenientContinues(t *testing.T) {
	prices := stableOracle(false)
	prices.prices["USDC"] = fakePrice{price: decimal.NewFromInt(1), stale: true}
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, prices, nil, nil, &simulator.Static{})

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if result.Success {
		t.Fatal("a failed oracle check must still fail the overall result")
	}
	if passed, reached := result.Checks.Result(CheckSimulation); !reached || !passed {
		t.Fatal("lenient staleness must let later stages run")
	}
}

func TestExecuteSwapGasFailureNonFatal(t *testing.T) {
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, stableOracle(true), failingEstimator{}, nil, &simulator.Static{})

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if passed, reached := result.Checks.Result(CheckGasEstimation); !reached || passed {
		t.Fatal("gas check must be reached and failed")
	}
	if passed, reached := result.Checks.Result(CheckSimulation); !reached || !passed {
		t.Fatal("gas failure must not stop the pipeline")
	}
	if !result.GasPriceWei.Equal(conservativeGasPriceWei) {
		t.Fatalf("expected conservative fallback gas price, got %s", result.GasPriceWei)
	}
	if result.Success {
		t.Fatal("overall must reflect the failed gas check")
	}
}

func TestExecuteSwapSimulationRevert(t *testing.T) {
	sim := &simulator.Static{Err: errors.New("execution reverted: TRANSFER_FROM_FAILED")}
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, stableOracle(true), nil, nil, sim)

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if result.Success {
		t.Fatal("a reverting simulation must fail the run")
	}
	if !strings.Contains(result.Error, "TRANSFER_FROM_FAILED") {
		t.Fatalf("error should carry the revert reason, got %q", result.Error)
	}
}

func TestExecuteSwapExactOutput(t *testing.T) {
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, stableOracle(true), nil, nil, nil)

	req := baseRequest()
	req.ExactOutput = true
	req.SlippageBps = 100

	result, err := p.ExecuteSwap(context.Background(), req)
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if !result.MaxAmountIn.Equal(decimal.NewFromInt(1010)) {
		t.Fatalf("expected max input 1010 at 100 bps, got %s", result.MaxAmountIn)
	}
	if !result.MinAmountOut.IsZero() {
		t.Fatal("exact-output requests must not set a min output")
	}
}

func TestExecuteSwapRejectsBadInput(t *testing.T) {
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, stableOracle(true), nil, nil, nil)

	if _, err := p.ExecuteSwap(context.Background(), SwapRequest{}); err == nil {
		t.Fatal("zero amount must be rejected")
	}

	req := baseRequest()
	req.SlippageBps = 10001
	if _, err := p.ExecuteSwap(context.Background(), req); err == nil {
		t.Fatal("out-of-range slippage must be rejected")
	}
}

func TestSummarizeFormat(t *testing.T) {
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, stableOracle(true), nil, nil, &simulator.Static{})

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	summary := Summarize(result.Checks)
	if !strings.HasPrefix(summary, "SECURITY CHECK SUMMARY\n") {
		t.Fatalf("summary must start with the fixed header:\n%s", summary)
	}
	for _, name := range []string{"quote", "oracle_price", "price_deviation", "slippage_protection", "gas_estimation", "approval", "simulation", "overall"} {
		if !strings.Contains(summary, name) {
			t.Fatalf("summary missing check %s:\n%s", name, summary)
		}
	}
	if !strings.Contains(summary, "✓") {
		t.Fatalf("summary should contain pass glyphs:\n%s", summary)
	}
}

func TestExecuteSwapZeroOraclePriceFails(t *testing.T) {
	prices := &fakeOracle{
		strict: true,
		prices: map[string]fakePrice{
			"USDC": {price: decimal.Decimal{}},
			"DAI":  {price: decimal.NewFromInt(1)},
		},
	}
	p := newPipeline(t, &fakeQuoteSource{quote: goodQuote()}, prices, nil, nil, nil)

	result, err := p.ExecuteSwap(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}

	if result.Success {
		t.Fatal("zero oracle price must not pass")
	}
	passed, reached := result.Checks.Result(CheckOraclePrice)
	if !reached || passed {
		t.Fatal("oracle_price check should be reached and failed")
	}
	if _, reached := result.Checks.Result(CheckPriceDeviation); reached {
		t.Fatal("price_deviation must not run after a zero oracle price")
	}
	if !strings.Contains(result.Error, "zero price") {
		t.Fatalf("error should name the zero price, got %q", result.Error)
	}
}
