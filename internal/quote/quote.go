package quote

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Request describes a swap to be quoted.
type Request struct {
	TokenIn    string
	TokenOut   string
	AmountIn   decimal.Decimal
	FeeTierBps int
	From       string
}

// Quote is the immutable result of one quote fetch. Produced once per
// pipeline run and never mutated afterwards.
type Quote struct {
	TokenIn        string
	TokenOut       string
	AmountIn       decimal.Decimal
	AmountOut      decimal.Decimal
	AmountInAtoms  string
	AmountOutAtoms string
	// ExecutionPrice is AmountOut / AmountIn.
	ExecutionPrice decimal.Decimal
	GasEstimate    int64
	// PoolState carries the raw post-trade venue payload for auditing.
	PoolState json.RawMessage
}

// Source produces swap quotes from a DEX venue.
type Source interface {
	Fetch(ctx context.Context, req Request) (*Quote, error)
}
