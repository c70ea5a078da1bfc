package quote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCowFetchMissingTokens(t *testing.T) {
	src := NewCowSource(CowOptions{}, noopLogger())
	_, err := src.Fetch(context.Background(), Request{AmountIn: decimal.NewFromInt(1)})
	if err == nil {
		t.Fatal("missing token addresses must error")
	}
}

func TestCowFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorType": "NoLiquidity"})
	}))
	defer srv.Close()

	src := NewCowSource(CowOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := src.Fetch(context.Background(), Request{
		TokenIn:  "0x1",
		TokenOut: "0x2",
		AmountIn: decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("HTTP 400 must error")
	}
}

func TestCowFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quote": map[string]string{
				"sellAmount": "1000000000000000000",
				"buyAmount":  "2000000000000000000",
				"feeAmount":  "0",
				"gasAmount":  "180000",
			},
			"priceQuality": "verified",
		})
	}))
	defer srv.Close()

	src := NewCowSource(CowOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	q, err := src.Fetch(context.Background(), Request{
		TokenIn:  "0x1",
		TokenOut: "0x2",
		AmountIn: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !q.ExecutionPrice.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected execution price 2, got %s", q.ExecutionPrice)
	}
	if !q.AmountOut.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected amount out 2, got %s", q.AmountOut)
	}
	if q.GasEstimate != 180000 {
		t.Fatalf("expected embedded gas estimate, got %d", q.GasEstimate)
	}
	if len(q.PoolState) == 0 {
		t.Fatal("pool state payload should be captured")
	}
}

func TestCowFetchZeroOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quote": map[string]string{"sellAmount": "1", "buyAmount": "0"},
		})
	}))
	defer srv.Close()

	src := NewCowSource(CowOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := src.Fetch(context.Background(), Request{
		TokenIn:  "0x1",
		TokenOut: "0x2",
		AmountIn: decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("zero buy amount must error")
	}
}
