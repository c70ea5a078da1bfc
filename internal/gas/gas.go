package gas

import (
	"context"

	"github.com/shopspring/decimal"
)

// Operation identifies a rebalance step with a distinct gas profile.
type Operation string

const (
	OpWithdraw Operation = "withdraw"
	OpApprove  Operation = "approve"
	OpSwap     Operation = "swap"
	OpDeposit  Operation = "deposit"
)

// Estimator supplies gas prices in wei, the native token USD price, and
// per-operation gas unit estimates.
type Estimator interface {
	GasPrice(ctx context.Context) (decimal.Decimal, error)
	NativeTokenPrice(ctx context.Context) (decimal.Decimal, error)
	Units(op Operation) int64
}

// DefaultUnits are conservative per-operation estimates used when no
// override is configured.
var DefaultUnits = map[Operation]int64{
	OpWithdraw: 250000,
	OpApprove:  55000,
	OpSwap:     180000,
	OpDeposit:  220000,
}
