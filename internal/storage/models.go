package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DecisionRecord is one persisted rebalance evaluation: the candidate, the
// profitability verdict, and the safety pipeline outcome when it ran.
type DecisionRecord struct {
	ID              int64
	Bucket          time.Time
	FromProtocol    string
	ToProtocol      string
	Token           string
	PositionUSD     decimal.Decimal
	CurrentAPY      decimal.Decimal
	TargetAPY       decimal.Decimal
	AnnualGainUSD   decimal.Decimal
	TotalCostUSD    decimal.Decimal
	NetGainUSD      decimal.Decimal
	BreakEvenDays   int64
	Profitable      bool
	PipelineSuccess *bool
	Checks          json.RawMessage
	Status          string
	Error           *string
	CreatedAt       time.Time
}

// Decision statuses recorded in the journal.
const (
	StatusRejected  = "rejected"
	StatusValidated = "validated"
	StatusBlocked   = "blocked"
	StatusError     = "error"
)
