package profit

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/guard"
)

// InfiniteSentinel is the canonical "never pays for itself" value used for
// break-even days when there is no annual gain and for ROI when costs are
// zero. One constant for both so callers can test against a single value.
const InfiniteSentinel int64 = 999_999

var (
	decDaysPerYear = decimal.NewFromInt(365)
	decWeiPerEther = decimal.New(1, 18)

	// Conservative static fallbacks applied when no gas pricer is wired.
	defaultGasPriceWei   = decimal.New(30, 9) // 30 gwei
	defaultNativeUSD     = decimal.NewFromInt(3000)
	errNonPositionalMove = errors.New("position size must be positive")
)

// GasPricer supplies the chain-level prices needed to convert gas units to
// USD. Implementations may serve from a short-lived cache.
type GasPricer interface {
	GasPrice(ctx context.Context) (decimal.Decimal, error)
	NativeTokenPrice(ctx context.Context) (decimal.Decimal, error)
}

// GasUnits holds per-operation gas unit estimates.
type GasUnits struct {
	Withdraw int64
	Approve  int64
	Swap     int64
	Deposit  int64
}

// Thresholds are the profitability gates every candidate move must clear.
type Thresholds struct {
	MinAnnualGainUSD decimal.Decimal
	MaxBreakEvenDays int64
	MaxCostPct       decimal.Decimal
}

// Options parameterise an Engine.
type Options struct {
	Thresholds Thresholds
	Units      GasUnits
}

// CandidateMove describes a proposed rebalance between two lending markets.
type CandidateMove struct {
	CurrentAPY     decimal.Decimal
	TargetAPY      decimal.Decimal
	PositionUSD    decimal.Decimal
	RequiresSwap   bool
	SwapAmountUSD  decimal.Decimal
	ProtocolFeePct decimal.Decimal
}

// RebalancingCosts itemises the one-time USD costs of a move. Total is always
// recomputed from the six components, never stored.
type RebalancingCosts struct {
	GasWithdraw  decimal.Decimal
	GasApprove   decimal.Decimal
	GasSwap      decimal.Decimal
	GasDeposit   decimal.Decimal
	SlippageCost decimal.Decimal
	ProtocolFees decimal.Decimal
}

// Total returns the exact sum of all cost components.
func (c RebalancingCosts) Total() decimal.Decimal {
	return c.GasWithdraw.
		Add(c.GasApprove).
		Add(c.GasSwap).
		Add(c.GasDeposit).
		Add(c.SlippageCost).
		Add(c.ProtocolFees)
}

// MoveProfitability is the immutable outcome of a profitability evaluation.
type MoveProfitability struct {
	APYImprovement    decimal.Decimal
	AnnualGainUSD     decimal.Decimal
	Costs             RebalancingCosts
	NetGainFirstYear  decimal.Decimal
	BreakEvenDays     int64
	ROIOnCosts        decimal.Decimal
	IsProfitable      bool
	RejectionReasons  []string
	DetailedBreakdown string
}

// Engine scores candidate rebalances with an explicit cost/benefit model. It
// is stateless apart from read-only configuration and safe for concurrent use.
type Engine struct {
	opts   Options
	guard  *guard.Guard
	pricer GasPricer
	logger zerolog.Logger
}

// NewEngine constructs an Engine. pricer may be nil, in which case static
// fallback chain prices are used.
func NewEngine(opts Options, g *guard.Guard, pricer GasPricer, logger zerolog.Logger) (*Engine, error) {
	if g == nil {
		return nil, errors.New("slippage guard is required")
	}
	if opts.Thresholds.MaxBreakEvenDays <= 0 {
		return nil, errors.New("max break-even days must be positive")
	}
	if opts.Thresholds.MaxCostPct.Sign() <= 0 {
		return nil, errors.New("max cost pct must be positive")
	}
	if opts.Thresholds.MinAnnualGainUSD.IsNegative() {
		return nil, errors.New("min annual gain cannot be negative")
	}
	return &Engine{
		opts:   opts,
		guard:  g,
		pricer: pricer,
		logger: logger.With().Str("component", "profit_engine").Logger(),
	}, nil
}

// Evaluate scores a candidate move. Collaborator failures never surface as
// errors; chain prices fall back to static defaults. The only error is
// malformed input.
func (e *Engine) Evaluate(ctx context.Context, move CandidateMove) (MoveProfitability, error) {
	if move.PositionUSD.Sign() <= 0 {
		return MoveProfitability{}, errNonPositionalMove
	}

	improvement := move.TargetAPY.Sub(move.CurrentAPY)
	annualGain := move.PositionUSD.Mul(improvement).Div(decHundred())

	costs := e.assembleCosts(ctx, move)
	totalCost := costs.Total()
	netGain := annualGain.Sub(totalCost)

	breakEven := breakEvenDays(totalCost, annualGain)
	roi := roiOnCosts(netGain, totalCost)

	var reasons []string
	if improvement.Sign() <= 0 {
		reasons = append(reasons, "No APY improvement")
	}
	if netGain.LessThan(e.opts.Thresholds.MinAnnualGainUSD) {
		reasons = append(reasons, fmt.Sprintf(
			"Net gain $%s below minimum $%s",
			netGain.StringFixed(2), e.opts.Thresholds.MinAnnualGainUSD.StringFixed(2)))
	}
	if breakEven > e.opts.Thresholds.MaxBreakEvenDays {
		reasons = append(reasons, fmt.Sprintf(
			"Break-even %d days exceeds maximum %d days",
			breakEven, e.opts.Thresholds.MaxBreakEvenDays))
	}
	costPct := totalCost.Div(move.PositionUSD).Mul(decHundred())
	if costPct.GreaterThan(e.opts.Thresholds.MaxCostPct) {
		reasons = append(reasons, fmt.Sprintf(
			"Costs %s%% of position exceed maximum %s%%",
			costPct.StringFixed(4), e.opts.Thresholds.MaxCostPct.String()))
	}

	result := MoveProfitability{
		APYImprovement:   improvement,
		AnnualGainUSD:    annualGain,
		Costs:            costs,
		NetGainFirstYear: netGain,
		BreakEvenDays:    breakEven,
		ROIOnCosts:       roi,
		IsProfitable:     len(reasons) == 0,
		RejectionReasons: reasons,
	}
	result.DetailedBreakdown = renderBreakdown(move, result, e.opts.Thresholds)

	e.logger.Debug().
		Str("apy_improvement", improvement.StringFixed(4)).
		Str("annual_gain_usd", annualGain.StringFixed(2)).
		Str("total_cost_usd", totalCost.StringFixed(2)).
		Bool("profitable", result.IsProfitable).
		Msg("candidate move evaluated")

	return result, nil
}

func (e *Engine) assembleCosts(ctx context.Context, move CandidateMove) RebalancingCosts {
	gasPrice, nativeUSD := e.chainPrices(ctx)

	costs := RebalancingCosts{
		GasWithdraw: gasCostUSD(e.opts.Units.Withdraw, gasPrice, nativeUSD),
		GasDeposit:  gasCostUSD(e.opts.Units.Deposit, gasPrice, nativeUSD),
	}

	if move.RequiresSwap {
		costs.GasApprove = gasCostUSD(e.opts.Units.Approve, gasPrice, nativeUSD)
		costs.GasSwap = gasCostUSD(e.opts.Units.Swap, gasPrice, nativeUSD)
		costs.SlippageCost = move.SwapAmountUSD.
			Mul(decimal.NewFromInt(e.guard.DefaultSlippageBps())).
			Div(decimal.NewFromInt(guard.BpsDenominator))
	}

	if move.ProtocolFeePct.Sign() > 0 {
		costs.ProtocolFees = move.PositionUSD.Mul(move.ProtocolFeePct).Div(decHundred())
	}

	return costs
}

func (e *Engine) chainPrices(ctx context.Context) (gasPriceWei, nativeUSD decimal.Decimal) {
	gasPriceWei = defaultGasPriceWei
	nativeUSD = defaultNativeUSD
	if e.pricer == nil {
		return gasPriceWei, nativeUSD
	}

	if price, err := e.pricer.GasPrice(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("gas price lookup failed, using static default")
	} else if price.Sign() > 0 {
		gasPriceWei = price
	}

	if price, err := e.pricer.NativeTokenPrice(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("native price lookup failed, using static default")
	} else if price.Sign() > 0 {
		nativeUSD = price
	}

	return gasPriceWei, nativeUSD
}

func gasCostUSD(units int64, gasPriceWei, nativeUSD decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(units).Mul(gasPriceWei).Mul(nativeUSD).Div(decWeiPerEther)
}

func breakEvenDays(totalCost, annualGain decimal.Decimal) int64 {
	if annualGain.Sign() <= 0 {
		return InfiniteSentinel
	}
	days := totalCost.Div(annualGain).Mul(decDaysPerYear).Ceil().IntPart()
	if days > InfiniteSentinel {
		return InfiniteSentinel
	}
	return days
}

func roiOnCosts(netGain, totalCost decimal.Decimal) decimal.Decimal {
	if totalCost.IsZero() {
		return decimal.NewFromInt(InfiniteSentinel)
	}
	return netGain.Div(totalCost).Mul(decHundred())
}

func decHundred() decimal.Decimal {
	return decimal.NewFromInt(100)
}
