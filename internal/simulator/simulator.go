package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// CallParams describes the transaction to dry-run. Calldata is the encoded
// swap; Value is in wei and may be nil.
type CallParams struct {
	From     string
	To       string
	Calldata []byte
	Value    *big.Int
}

// Simulator validates that a built transaction would not revert, without
// broadcasting it.
type Simulator interface {
	Simulate(ctx context.Context, params CallParams) error
}

// EthCallOptions parameterise the eth_call simulator.
type EthCallOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// EthCall simulates transactions via eth_call against the latest block.
type EthCall struct {
	opts      EthCallOptions
	logger    zerolog.Logger
	clientMux sync.Mutex
	client    *ethclient.Client
}

// NewEthCall constructs an eth_call simulator.
func NewEthCall(opts EthCallOptions, logger zerolog.Logger) *EthCall {
	return &EthCall{
		opts:   opts,
		logger: logger.With().Str("component", "tx_simulator").Logger(),
	}
}

// Simulate executes the call without broadcasting. A revert surfaces as an
// error carrying the node's revert reason.
func (e *EthCall) Simulate(ctx context.Context, params CallParams) error {
	if e.opts.RPCURL == "" {
		return errors.New("ethereum rpc url not configured")
	}
	if params.To == "" {
		return errors.New("target address required")
	}

	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return err
	}

	to := common.HexToAddress(params.To)
	msg := ethereum.CallMsg{
		From:  common.HexToAddress(params.From),
		To:    &to,
		Data:  params.Calldata,
		Value: params.Value,
	}

	if _, err := client.CallContract(ctx, msg, nil); err != nil {
		return fmt.Errorf("simulation reverted: %w", err)
	}

	e.logger.Debug().Str("to", params.To).Msg("simulation passed")
	return nil
}

func (e *EthCall) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	client, err := ethclient.DialContext(ctx, e.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	e.client = client
	return client, nil
}

var _ Simulator = (*EthCall)(nil)

// Static always returns the configured outcome; used for offline runs and
// tests.
type Static struct {
	Err error
}

// Simulate returns the fixed outcome.
func (s *Static) Simulate(ctx context.Context, params CallParams) error {
	return s.Err
}

var _ Simulator = (*Static)(nil)
