package oracle

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle returns an independent USD reference price for a symbol. The
// bool reports staleness; Strict controls whether a stale price should stop
// a swap pipeline run.
type PriceOracle interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
	Strict() bool
}
