package markets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Market is one lending venue offer: a protocol paying a supply APY on a
// token. Read adapters per protocol live behind the snapshot service; this
// core only consumes their aggregated output.
type Market struct {
	Protocol       string          `json:"protocol"`
	Token          string          `json:"token"`
	TokenAddress   string          `json:"token_address"`
	SupplyAPY      decimal.Decimal `json:"supply_apy"`
	ProtocolFeePct decimal.Decimal `json:"fee_pct"`
}

// Source produces the current lending market snapshot.
type Source interface {
	Snapshot(ctx context.Context) ([]Market, error)
}

// HTTPOptions parameterise the snapshot fetcher.
type HTTPOptions struct {
	SourceURL string
	Timeout   time.Duration
	UserAgent string
}

// HTTPSource fetches market snapshots from an aggregator endpoint.
type HTTPSource struct {
	opts   HTTPOptions
	logger zerolog.Logger
	client *http.Client
}

// NewHTTPSource constructs a snapshot fetcher.
func NewHTTPSource(opts HTTPOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		opts:   opts,
		logger: logger.With().Str("component", "markets_source").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Snapshot retrieves and decodes the current market list.
func (h *HTTPSource) Snapshot(ctx context.Context) ([]Market, error) {
	if h.opts.SourceURL == "" {
		return nil, errors.New("markets source url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.SourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("markets api error (%d)", resp.StatusCode)
	}

	var snapshot []Market
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode markets snapshot: %w", err)
	}
	if len(snapshot) == 0 {
		return nil, errors.New("markets snapshot is empty")
	}

	h.logger.Debug().Int("markets", len(snapshot)).Msg("snapshot fetched")
	return snapshot, nil
}

var _ Source = (*HTTPSource)(nil)
