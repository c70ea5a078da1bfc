package approval

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Decision records whether a trade notional crosses the manual-approval
// threshold. The gate only flags; enforcing the flag before a live broadcast
// is the caller's responsibility.
type Decision struct {
	Required     bool
	TradeUSD     decimal.Decimal
	ThresholdUSD decimal.Decimal
}

// Gate compares trade notionals against a configured USD threshold.
type Gate struct {
	thresholdUSD decimal.Decimal
	logger       zerolog.Logger
}

// NewGate constructs an approval gate. A zero threshold means every trade
// requires approval.
func NewGate(thresholdUSD decimal.Decimal, logger zerolog.Logger) *Gate {
	return &Gate{
		thresholdUSD: thresholdUSD,
		logger:       logger.With().Str("component", "approval_gate").Logger(),
	}
}

// Decide evaluates a trade notional against the threshold.
func (g *Gate) Decide(tradeUSD decimal.Decimal) Decision {
	required := tradeUSD.GreaterThanOrEqual(g.thresholdUSD)
	if required {
		g.logger.Info().
			Str("trade_usd", tradeUSD.StringFixed(2)).
			Str("threshold_usd", g.thresholdUSD.StringFixed(2)).
			Msg("trade requires manual approval")
	}
	return Decision{
		Required:     required,
		TradeUSD:     tradeUSD,
		ThresholdUSD: g.thresholdUSD,
	}
}
