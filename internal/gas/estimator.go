package gas

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/oracle"
)

// EthOptions parameterise the RPC-backed estimator.
type EthOptions struct {
	RPCURL       string
	NativeSymbol string
	Timeout      time.Duration
	CacheTTL     time.Duration
	Units        map[Operation]int64
}

// EthEstimator reads the suggested gas price over Ethereum RPC, caching it
// for a short TTL, and resolves the native token USD price via the oracle.
type EthEstimator struct {
	opts   EthOptions
	prices oracle.PriceOracle
	logger zerolog.Logger

	clientMux sync.Mutex
	client    *ethclient.Client

	cacheMux  sync.Mutex
	cached    decimal.Decimal
	fetchedAt time.Time
}

// NewEthEstimator constructs an estimator. prices resolves the native token
// USD price and must not be nil.
func NewEthEstimator(opts EthOptions, prices oracle.PriceOracle, logger zerolog.Logger) (*EthEstimator, error) {
	if prices == nil {
		return nil, errors.New("price oracle is required")
	}
	if opts.NativeSymbol == "" {
		opts.NativeSymbol = "ETH"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &EthEstimator{
		opts:   opts,
		prices: prices,
		logger: logger.With().Str("component", "gas_estimator").Logger(),
	}, nil
}

// GasPrice returns the suggested gas price in wei, served from a short-lived
// cache when fresh.
func (e *EthEstimator) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	e.cacheMux.Lock()
	if !e.cached.IsZero() && time.Since(e.fetchedAt) < e.opts.CacheTTL {
		cached := e.cached
		e.cacheMux.Unlock()
		return cached, nil
	}
	e.cacheMux.Unlock()

	if e.opts.RPCURL == "" {
		return decimal.Decimal{}, errors.New("ethereum rpc url not configured")
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
		return decimal.Decimal{}, err
	}

	suggested, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("suggest gas price: %w", err)
	}

	price := decimal.NewFromBigInt(suggested, 0)

	e.cacheMux.Lock()
	e.cached = price
	e.fetchedAt = time.Now()
	e.cacheMux.Unlock()

	e.logger.Debug().Str("gas_price_wei", price.String()).Msg("gas price refreshed")
	return price, nil
}

// NativeTokenPrice resolves the native token USD price from the oracle.
func (e *EthEstimator) NativeTokenPrice(ctx context.Context) (decimal.Decimal, error) {
	price, stale, err := e.prices.Price(ctx, e.opts.NativeSymbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if stale {
		e.logger.Warn().Str("symbol", e.opts.NativeSymbol).Msg("native token price is stale")
	}
	return price, nil
}

// Units returns the configured gas unit estimate for an operation, falling
// back to the package defaults.
func (e *EthEstimator) Units(op Operation) int64 {
	if units, ok := e.opts.Units[op]; ok && units > 0 {
		return units
	}
	return DefaultUnits[op]
}

func (e *EthEstimator) getClient(ctx context.Context) (*ethclient.Client, error) {
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

var _ Estimator = (*EthEstimator)(nil)

// Static is an offline estimator with fixed prices, used for evaluation runs
// without chain access and in tests.
type Static struct {
	GasPriceWei decimal.Decimal
	NativeUSD   decimal.Decimal
	UnitTable   map[Operation]int64
}

// GasPrice returns the fixed gas price.
func (s *Static) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	if s.GasPriceWei.IsZero() {
		return decimal.Decimal{}, errors.New("static gas price not set")
	}
	return s.GasPriceWei, nil
}

// NativeTokenPrice returns the fixed native token price.
func (s *Static) NativeTokenPrice(ctx context.Context) (decimal.Decimal, error) {
	if s.NativeUSD.IsZero() {
		return decimal.Decimal{}, errors.New("static native price not set")
	}
	return s.NativeUSD, nil
}

// Units returns the configured or default unit estimate.
func (s *Static) Units(op Operation) int64 {
	if units, ok := s.UnitTable[op]; ok && units > 0 {
		return units
	}
	return DefaultUnits[op]
}

var _ Estimator = (*Static)(nil)
