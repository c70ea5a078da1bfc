package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const aggregatorABIJSON = `[
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain price oracle.
type ChainlinkOptions struct {
	RPCURL          string
	Feeds           map[string]string
	StalenessWindow time.Duration
	Strict          bool
	Timeout         time.Duration
}

// Chainlink reads USD prices from Chainlink-style aggregator feeds.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	decimalsMux sync.Mutex
	decimalsByF map[common.Address]uint8
}

// NewChainlink builds an on-chain price oracle.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{
		opts:        opts,
		logger:      logger.With().Str("component", "price_oracle").Logger(),
		decimalsByF: make(map[common.Address]uint8),
	}
}

// Strict reports whether stale prices should stop a pipeline run.
func (c *Chainlink) Strict() bool {
	return c.opts.Strict
}

// Price returns the latest feed answer for the symbol and whether it is stale.
func (c *Chainlink) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	if c.opts.RPCURL == "" {
		return decimal.Decimal{}, false, errors.New("ethereum rpc url not configured")
	}
	feed, ok := c.opts.Feeds[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Decimal{}, false, fmt.Errorf("no price feed configured for %s", symbol)
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, false, err
	}

	addr := common.HexToAddress(feed)

	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("latestRoundData %s: %w", symbol, err)
	}
	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if len(outputs) < 4 {
		return decimal.Decimal{}, false, errors.New("unexpected latestRoundData shape")
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return decimal.Decimal{}, false, fmt.Errorf("feed %s returned non-positive answer", symbol)
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return decimal.Decimal{}, false, errors.New("unexpected updatedAt type")
	}

	feedDecimals, err := c.feedDecimals(ctx, client, addr)
	if err != nil {
		return decimal.Decimal{}, false, err
	}

	price := decimal.NewFromBigInt(answer, -int32(feedDecimals))

	stale := false
	if c.opts.StalenessWindow > 0 {
		updated := time.Unix(updatedAt.Int64(), 0)
		stale = time.Since(updated) > c.opts.StalenessWindow
	}
	if stale {
		c.logger.Warn().
			Str("symbol", symbol).
			Time("updated_at", time.Unix(updatedAt.Int64(), 0)).
			Msg("oracle price is stale")
	}

	return price, stale, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (uint8, error) {
	c.decimalsMux.Lock()
	cached, ok := c.decimalsByF[addr]
	c.decimalsMux.Unlock()
	if ok {
		return cached, nil
	}

	payload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return 0, fmt.Errorf("feed decimals: %w", err)
	}
	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	feedDecimals, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("unexpected decimals type")
	}

	c.decimalsMux.Lock()
	c.decimalsByF[addr] = feedDecimals
	c.decimalsMux.Unlock()
	return feedDecimals, nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	c.client = client
	return client, nil
}

var _ PriceOracle = (*Chainlink)(nil)
