package guard

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrPriceDeviationExceeded signals the DEX price diverged from the oracle
	// beyond tolerance. Fatal for the current swap attempt, never retried.
	ErrPriceDeviationExceeded = errors.New("price deviation exceeds tolerance")
	// ErrInvalidDeadline signals a deadline at or before the current time.
	ErrInvalidDeadline = errors.New("deadline must be in the future")
	// ErrZeroOraclePrice signals a zero oracle reference price, which is a
	// configuration fault rather than a market condition.
	ErrZeroOraclePrice = errors.New("oracle price must be positive")
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

var (
	decBpsDenominator = decimal.NewFromInt(BpsDenominator)
	decHundred        = decimal.NewFromInt(100)
)

// Options parameterise a Guard.
type Options struct {
	// SlippageBps is the default tolerance applied when a caller does not
	// supply one. Must be within [0, 10000].
	SlippageBps int64
	// MaxDeviationPct is the default DEX-vs-oracle divergence tolerance in
	// percent. Must not be negative.
	MaxDeviationPct decimal.Decimal
	// DeadlineSeconds is the default transaction deadline horizon.
	DeadlineSeconds int64
}

// Guard bundles slippage bounds, price-deviation checks, price impact, and
// deadline arithmetic. All methods are pure functions of their inputs; the
// only side effect is logging. Safe for concurrent use.
type Guard struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New validates options and constructs a Guard.
func New(opts Options, logger zerolog.Logger) (*Guard, error) {
	if opts.SlippageBps < 0 || opts.SlippageBps > BpsDenominator {
		return nil, fmt.Errorf("slippage bps must be within [0, %d], got %d", BpsDenominator, opts.SlippageBps)
	}
	if opts.MaxDeviationPct.IsNegative() {
		return nil, fmt.Errorf("max deviation pct cannot be negative, got %s", opts.MaxDeviationPct)
	}
	if opts.DeadlineSeconds <= 0 {
		opts.DeadlineSeconds = 600
	}
	return &Guard{
		opts:   opts,
		logger: logger.With().Str("component", "slippage_guard").Logger(),
		now:    time.Now,
	}, nil
}

// DefaultSlippageBps exposes the configured tolerance.
func (g *Guard) DefaultSlippageBps() int64 {
	return g.opts.SlippageBps
}

// MaxDeviationPct exposes the configured deviation tolerance.
func (g *Guard) MaxDeviationPct() decimal.Decimal {
	return g.opts.MaxDeviationPct
}

// MinOutput applies the configured tolerance: expected * (1 - bps/10000).
func (g *Guard) MinOutput(expected decimal.Decimal) decimal.Decimal {
	out, _ := g.MinOutputBps(expected, g.opts.SlippageBps)
	return out
}

// MinOutputBps computes the minimum acceptable output for an explicit
// tolerance. bps=0 returns expected unchanged; bps=10000 returns zero.
func (g *Guard) MinOutputBps(expected decimal.Decimal, bps int64) (decimal.Decimal, error) {
	if err := validateBps(bps); err != nil {
		return decimal.Decimal{}, err
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromInt(bps).Div(decBpsDenominator))
	return expected.Mul(factor), nil
}

// MaxInput applies the configured tolerance: expected * (1 + bps/10000).
func (g *Guard) MaxInput(expected decimal.Decimal) decimal.Decimal {
	in, _ := g.MaxInputBps(expected, g.opts.SlippageBps)
	return in
}

// MaxInputBps computes the maximum acceptable input for an explicit
// tolerance. bps=10000 doubles the expected amount.
func (g *Guard) MaxInputBps(expected decimal.Decimal, bps int64) (decimal.Decimal, error) {
	if err := validateBps(bps); err != nil {
		return decimal.Decimal{}, err
	}
	factor := decimal.NewFromInt(1).Add(decimal.NewFromInt(bps).Div(decBpsDenominator))
	return expected.Mul(factor), nil
}

// DeviationPct computes |dex - oracle| / oracle * 100. A zero oracle price is
// rejected as a configuration fault rather than silently passing.
func (g *Guard) DeviationPct(dexPrice, oraclePrice decimal.Decimal) (decimal.Decimal, error) {
	if oraclePrice.IsZero() {
		return decimal.Decimal{}, ErrZeroOraclePrice
	}
	return dexPrice.Sub(oraclePrice).Abs().Div(oraclePrice).Mul(decHundred), nil
}

// ValidatePriceDeviation checks the DEX price against the oracle reference
// using the configured tolerance.
func (g *Guard) ValidatePriceDeviation(dexPrice, oraclePrice decimal.Decimal) error {
	return g.ValidatePriceDeviationWithin(dexPrice, oraclePrice, g.opts.MaxDeviationPct)
}

// ValidatePriceDeviationWithin checks against an explicit tolerance in
// percent. The boundary value itself passes.
func (g *Guard) ValidatePriceDeviationWithin(dexPrice, oraclePrice, maxPct decimal.Decimal) error {
	deviation, err := g.DeviationPct(dexPrice, oraclePrice)
	if err != nil {
		return err
	}
	if deviation.GreaterThan(maxPct) {
		g.logger.Warn().
			Str("dex_price", dexPrice.String()).
			Str("oracle_price", oraclePrice.String()).
			Str("deviation_pct", deviation.StringFixed(4)).
			Str("max_pct", maxPct.String()).
			Msg("price deviation exceeds tolerance")
		return fmt.Errorf("%w: %s%% > %s%%", ErrPriceDeviationExceeded, deviation.StringFixed(4), maxPct.String())
	}
	return nil
}

// PriceImpact computes (amountOut/amountIn - oracle) / oracle * 100, signed:
// positive means execution beat the oracle reference.
func (g *Guard) PriceImpact(amountIn, amountOut, oraclePrice decimal.Decimal) (decimal.Decimal, error) {
	if oraclePrice.IsZero() {
		return decimal.Decimal{}, ErrZeroOraclePrice
	}
	if amountIn.IsZero() {
		return decimal.Decimal{}, errors.New("amount in must be positive")
	}
	executionPrice := amountOut.Div(amountIn)
	return executionPrice.Sub(oraclePrice).Div(oraclePrice).Mul(decHundred), nil
}

// Deadline returns an absolute Unix timestamp secondsFromNow in the future.
func (g *Guard) Deadline(secondsFromNow int64) int64 {
	if secondsFromNow <= 0 {
		secondsFromNow = g.opts.DeadlineSeconds
	}
	return g.now().Unix() + secondsFromNow
}

// ValidateDeadline fails when the deadline is not strictly in the future.
func (g *Guard) ValidateDeadline(deadline int64) error {
	if deadline <= g.now().Unix() {
		return fmt.Errorf("%w: %d", ErrInvalidDeadline, deadline)
	}
	return nil
}

// SlippageFromAmounts recovers the tolerance in integer bps implied by an
// expected/minimum pair: floor((expected - minimum) / expected * 10000).
// Returns 0 when expected is zero rather than dividing by zero. Negative
// inputs are formula-preserving only; they correspond to no real swap and are
// flagged in the log.
func (g *Guard) SlippageFromAmounts(expected, minimum decimal.Decimal) int64 {
	if expected.IsZero() {
		return 0
	}
	if expected.IsNegative() || minimum.IsNegative() {
		g.logger.Debug().
			Str("expected", expected.String()).
			Str("minimum", minimum.String()).
			Msg("negative amounts in slippage recovery")
	}
	bps := expected.Sub(minimum).Div(expected).Mul(decBpsDenominator)
	return bps.Floor().IntPart()
}

// FormatBps renders a basis-point value as a percentage with two decimals.
func FormatBps(bps int64) string {
	return decimal.NewFromInt(bps).Div(decHundred).StringFixed(2) + "%"
}

func validateBps(bps int64) error {
	if bps < 0 || bps > BpsDenominator {
		return fmt.Errorf("slippage bps must be within [0, %d], got %d", BpsDenominator, bps)
	}
	return nil
}
