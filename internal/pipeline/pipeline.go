package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/approval"
	"yield-rebalancer/internal/gas"
	"yield-rebalancer/internal/guard"
	"yield-rebalancer/internal/oracle"
	"yield-rebalancer/internal/quote"
	"yield-rebalancer/internal/simulator"
)

// conservativeGasPriceWei is applied when the gas estimator is unavailable.
var conservativeGasPriceWei = decimal.New(50, 9) // 50 gwei

// SwapRequest describes one swap candidate to validate.
type SwapRequest struct {
	TokenIn        string
	TokenOut       string
	TokenInSymbol  string
	TokenOutSymbol string
	AmountIn       decimal.Decimal
	FromAddress    string
	DryRun         bool
	// SlippageBps overrides the guard's configured tolerance when >= 0.
	SlippageBps int64
	// ExactOutput switches slippage protection to a max-input bound.
	ExactOutput bool
	// Calldata is the pre-built swap transaction payload for simulation.
	Calldata []byte
}

// Result aggregates everything one pipeline run produced. Constructed once,
// never mutated after return.
type Result struct {
	Success        bool
	DryRun         bool
	Quote          *quote.Quote
	OraclePrice    decimal.Decimal
	PriceImpactPct decimal.Decimal
	SlippageBps    int64
	MinAmountOut   decimal.Decimal
	MaxAmountIn    decimal.Decimal
	Deadline       int64
	GasEstimate    int64
	GasPriceWei    decimal.Decimal
	Approval       approval.Decision
	Checks         SecurityChecks
	Error          string
}

// Options parameterise a Pipeline.
type Options struct {
	StageTimeout  time.Duration
	FeeTierBps    int
	RouterAddress string
}

// Pipeline sequences the pre-trade safety stages for a swap candidate:
// quote, oracle price, price deviation, slippage protection, gas estimation,
// approval, simulation. Stages run exactly once, strictly in order, and any
// collaborator failure folds into a failed named check instead of an error.
// Safe for concurrent use across independent candidates.
type Pipeline struct {
	opts      Options
	guard     *guard.Guard
	quotes    quote.Source
	prices    oracle.PriceOracle
	estimator gas.Estimator
	approvals *approval.Gate
	sim       simulator.Simulator
	logger    zerolog.Logger
}

// New constructs a Pipeline. quotes and the guard are required; the other
// collaborators may be nil, in which case their stages degrade as specified
// (oracle absence fails its check, gas falls back, approval and simulation
// pass trivially).
func New(opts Options, g *guard.Guard, quotes quote.Source, prices oracle.PriceOracle, estimator gas.Estimator, approvals *approval.Gate, sim simulator.Simulator, logger zerolog.Logger) (*Pipeline, error) {
	if g == nil {
		return nil, errors.New("slippage guard is required")
	}
	if quotes == nil {
		return nil, errors.New("quote source is required")
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 10 * time.Second
	}
	return &Pipeline{
		opts:      opts,
		guard:     g,
		quotes:    quotes,
		prices:    prices,
		estimator: estimator,
		approvals: approvals,
		sim:       sim,
		logger:    logger.With().Str("component", "swap_pipeline").Logger(),
	}, nil
}

// ExecuteSwap runs the full validation sequence for one candidate. The
// returned error is reserved for malformed input; every business failure is
// reported through the result's checks.
func (p *Pipeline) ExecuteSwap(ctx context.Context, req SwapRequest) (*Result, error) {
	if req.AmountIn.Sign() <= 0 {
		return nil, errors.New("amount in must be positive")
	}

	slippageBps := req.SlippageBps
	if slippageBps < 0 {
		slippageBps = p.guard.DefaultSlippageBps()
	}
	if slippageBps > guard.BpsDenominator {
		return nil, fmt.Errorf("slippage bps must be within [0, %d], got %d", guard.BpsDenominator, slippageBps)
	}

	result := &Result{
		DryRun:      req.DryRun,
		SlippageBps: slippageBps,
		Checks:      newSecurityChecks(),
	}

	logger := p.logger.With().
		Str("token_in", req.TokenInSymbol).
		Str("token_out", req.TokenOutSymbol).
		Str("amount_in", req.AmountIn.String()).
		Bool("dry_run", req.DryRun).
		Logger()

	defer func() {
		result.Checks.seal()
		result.Success = result.Checks.Overall()
		result.Error = result.Checks.Error
		logger.Info().
			Bool("success", result.Success).
			Str("error", result.Error).
			Msg("swap safety pipeline finished")
	}()

	if !p.stageQuote(ctx, req, result) {
		return result, nil
	}

	inUSD, stop := p.stageOraclePrice(ctx, req, result, logger)
	if stop {
		return result, nil
	}

	if !p.stagePriceDeviation(result) {
		return result, nil
	}

	p.stageSlippageProtection(req, result, slippageBps)
	p.stageGasEstimation(ctx, result, logger)
	p.stageApproval(req, result, inUSD)

	if !p.stageSimulation(ctx, req, result) {
		return result, nil
	}

	return result, nil
}

func (p *Pipeline) stageQuote(ctx context.Context, req SwapRequest, result *Result) bool {
	stageCtx, cancel := context.WithTimeout(ctx, p.opts.StageTimeout)
	defer cancel()

	q, err := p.quotes.Fetch(stageCtx, quote.Request{
		TokenIn:    req.TokenIn,
		TokenOut:   req.TokenOut,
		AmountIn:   req.AmountIn,
		FeeTierBps: p.opts.FeeTierBps,
		From:       req.FromAddress,
	})
	if err != nil {
		result.Checks.fail(CheckQuote, fmt.Sprintf("quote failed: %v", err))
		return false
	}

	result.Quote = q
	result.Checks.set(CheckQuote, true)
	return true
}

// stageOraclePrice resolves the tokenOut-per-tokenIn reference price from the
// two USD feeds. Returns the tokenIn USD price for the approval stage and
// whether the run must stop.
func (p *Pipeline) stageOraclePrice(ctx context.Context, req SwapRequest, result *Result, logger zerolog.Logger) (decimal.Decimal, bool) {
	if p.prices == nil {
		result.Checks.fail(CheckOraclePrice, "price oracle not configured")
		return decimal.Decimal{}, true
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.opts.StageTimeout)
	defer cancel()

	inUSD, inStale, err := p.prices.Price(stageCtx, req.TokenInSymbol)
	if err != nil {
		result.Checks.fail(CheckOraclePrice, fmt.Sprintf("oracle price %s: %v", req.TokenInSymbol, err))
		return decimal.Decimal{}, true
	}
	if inUSD.IsZero() {
		result.Checks.fail(CheckOraclePrice, fmt.Sprintf("oracle returned zero price for %s", req.TokenInSymbol))
		return decimal.Decimal{}, true
	}
	outUSD, outStale, err := p.prices.Price(stageCtx, req.TokenOutSymbol)
	if err != nil {
		result.Checks.fail(CheckOraclePrice, fmt.Sprintf("oracle price %s: %v", req.TokenOutSymbol, err))
		return decimal.Decimal{}, true
	}
	if outUSD.IsZero() {
		result.Checks.fail(CheckOraclePrice, fmt.Sprintf("oracle returned zero price for %s", req.TokenOutSymbol))
		return decimal.Decimal{}, true
	}

	result.OraclePrice = inUSD.Div(outUSD)

	if inStale || outStale {
		result.Checks.fail(CheckOraclePrice, "oracle price is stale")
		if p.prices.Strict() {
			return inUSD, true
		}
		logger.Warn().Msg("continuing with stale oracle price")
		return inUSD, false
	}

	result.Checks.set(CheckOraclePrice, true)
	return inUSD, false
}

func (p *Pipeline) stagePriceDeviation(result *Result) bool {
	err := p.guard.ValidatePriceDeviation(result.Quote.ExecutionPrice, result.OraclePrice)
	if err != nil {
		result.Checks.fail(CheckPriceDeviation, err.Error())
		return false
	}

	impact, err := p.guard.PriceImpact(result.Quote.AmountIn, result.Quote.AmountOut, result.OraclePrice)
	if err == nil {
		result.PriceImpactPct = impact
	}

	result.Checks.set(CheckPriceDeviation, true)
	return true
}

func (p *Pipeline) stageSlippageProtection(req SwapRequest, result *Result, slippageBps int64) {
	// The quote is guaranteed present at this point, so the stage cannot fail.
	if req.ExactOutput {
		maxIn, _ := p.guard.MaxInputBps(result.Quote.AmountIn, slippageBps)
		result.MaxAmountIn = maxIn
	} else {
		minOut, _ := p.guard.MinOutputBps(result.Quote.AmountOut, slippageBps)
		result.MinAmountOut = minOut
	}
	result.Deadline = p.guard.Deadline(0)
	result.Checks.set(CheckSlippageProtection, true)
}

func (p *Pipeline) stageGasEstimation(ctx context.Context, result *Result, logger zerolog.Logger) {
	units := result.Quote.GasEstimate
	if units <= 0 {
		if p.estimator != nil {
			units = p.estimator.Units(gas.OpSwap)
		} else {
			units = gas.DefaultUnits[gas.OpSwap]
		}
	}
	result.GasEstimate = units

	if p.estimator == nil {
		// The quote's embedded estimate still counts as a gas estimate; only
		// a missing unit count fails the check.
		result.GasPriceWei = conservativeGasPriceWei
		result.Checks.set(CheckGasEstimation, result.Quote.GasEstimate > 0)
		return
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.opts.StageTimeout)
	defer cancel()

	price, err := p.estimator.GasPrice(stageCtx)
	if err != nil {
		// Non-fatal: fall back to a conservative static price and continue.
		logger.Warn().Err(err).Msg("gas estimation failed, using conservative default")
		result.GasPriceWei = conservativeGasPriceWei
		result.Checks.set(CheckGasEstimation, false)
		return
	}

	result.GasPriceWei = price
	result.Checks.set(CheckGasEstimation, true)
}

func (p *Pipeline) stageApproval(req SwapRequest, result *Result, inUSD decimal.Decimal) {
	if p.approvals == nil {
		result.Checks.set(CheckApproval, true)
		return
	}

	tradeUSD := req.AmountIn.Mul(inUSD)
	result.Approval = p.approvals.Decide(tradeUSD)
	// The gate only flags; it never blocks a dry run.
	result.Checks.set(CheckApproval, true)
}

func (p *Pipeline) stageSimulation(ctx context.Context, req SwapRequest, result *Result) bool {
	if p.sim == nil {
		result.Checks.set(CheckSimulation, true)
		return true
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.opts.StageTimeout)
	defer cancel()

	err := p.sim.Simulate(stageCtx, simulator.CallParams{
		From:     req.FromAddress,
		To:       p.opts.RouterAddress,
		Calldata: req.Calldata,
	})
	if err != nil {
		result.Checks.fail(CheckSimulation, fmt.Sprintf("simulation failed: %v", err))
		return false
	}

	result.Checks.set(CheckSimulation, true)
	return true
}
