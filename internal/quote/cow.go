package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const cowQuotePath = "/quote"

var dec1e18 = decimal.New(1, 18)

// CowOptions parameterise the CoW Protocol quote source.
type CowOptions struct {
	BaseURL      string
	PriceQuality string
	Timeout      time.Duration
	UserAgent    string
}

// CowSource fetches quotes from a CoW-Protocol-style quote API.
type CowSource struct {
	opts    CowOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCowSource constructs a quote source.
func NewCowSource(opts CowOptions, logger zerolog.Logger) *CowSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cow.fi/mainnet/api/v1"
	}

	return &CowSource{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch requests a sell quote for the given pair and amount.
func (c *CowSource) Fetch(ctx context.Context, req Request) (*Quote, error) {
	if req.TokenIn == "" || req.TokenOut == "" {
		return nil, errors.New("tokenIn and tokenOut addresses required")
	}
	if req.AmountIn.Sign() <= 0 {
		return nil, errors.New("amount in must be greater than zero")
	}

	sellAtoms := req.AmountIn.Mul(dec1e18).Round(0)
	if sellAtoms.IsZero() {
		return nil, errors.New("sell amount rounded to zero")
	}

	from := req.From
	if from == "" {
		from = "0x0000000000000000000000000000000000000000"
	}

	payload := quoteRequest{
		SellToken:           req.TokenIn,
		BuyToken:            req.TokenOut,
		Kind:                "sell",
		From:                from,
		AppData:             `{"version":"0.7.0","appCode":"yieldrebalancer","metadata":{}}`,
		PriceQuality:        c.opts.PriceQuality,
		SellAmountBeforeFee: sellAtoms.StringFixed(0),
		ValidTo:             uint64(time.Now().Add(5 * time.Minute).Unix()),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + cowQuotePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	} else {
		httpReq.Header.Set("User-Agent", "yieldrebalancer/1.0")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var res quoteResponse
	if err := json.Unmarshal(payloadBytes, &res); err != nil {
		return nil, err
	}

	buyAtoms, err := decimal.NewFromString(res.Quote.BuyAmount)
	if err != nil {
		return nil, fmt.Errorf("parse buy amount: %w", err)
	}
	if buyAtoms.IsZero() {
		return nil, errors.New("quote returned zero output, no liquidity")
	}

	amountOut := buyAtoms.Div(dec1e18)

	q := &Quote{
		TokenIn:        req.TokenIn,
		TokenOut:       req.TokenOut,
		AmountIn:       req.AmountIn,
		AmountOut:      amountOut,
		AmountInAtoms:  sellAtoms.StringFixed(0),
		AmountOutAtoms: buyAtoms.StringFixed(0),
		ExecutionPrice: amountOut.Div(req.AmountIn),
		PoolState:      json.RawMessage(payloadBytes),
	}
	if res.Quote.GasAmount != "" {
		if units, err := decimal.NewFromString(res.Quote.GasAmount); err == nil {
			q.GasEstimate = units.IntPart()
		}
	}

	c.logger.Debug().
		Str("token_in", req.TokenIn).
		Str("token_out", req.TokenOut).
		Str("execution_price", q.ExecutionPrice.StringFixed(6)).
		Msg("quote fetched")

	return q, nil
}

type quoteRequest struct {
	SellToken           string `json:"sellToken"`
	BuyToken            string `json:"buyToken"`
	Kind                string `json:"kind"`
	From                string `json:"from"`
	AppData             string `json:"appData"`
	PriceQuality        string `json:"priceQuality,omitempty"`
	SellAmountBeforeFee string `json:"sellAmountBeforeFee"`
	ValidTo             uint64 `json:"validTo"`
}

type quoteResponse struct {
	Quote struct {
		SellAmount string `json:"sellAmount"`
		BuyAmount  string `json:"buyAmount"`
		FeeAmount  string `json:"feeAmount"`
		GasAmount  string `json:"gasAmount"`
		SellToken  string `json:"sellToken"`
		BuyToken   string `json:"buyToken"`
	} `json:"quote"`
	PriceQuality string `json:"priceQuality"`
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("quote api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("quote api error (%d)", status)
}

var _ Source = (*CowSource)(nil)
