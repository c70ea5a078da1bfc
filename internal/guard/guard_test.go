package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newGuard(t *testing.T, opts Options) *Guard {
	t.Helper()
	g, err := New(opts, noopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNewRejectsOutOfRangeBps(t *testing.T) {
	if _, err := New(Options{SlippageBps: -1}, noopLogger()); err == nil {
		t.Fatal("negative bps should be rejected at construction")
	}
	if _, err := New(Options{SlippageBps: 10001}, noopLogger()); err == nil {
		t.Fatal("bps above 10000 should be rejected at construction")
	}
	if _, err := New(Options{MaxDeviationPct: decimal.NewFromInt(-1)}, noopLogger()); err == nil {
		t.Fatal("negative max deviation should be rejected at construction")
	}
}

func TestMinOutputFormula(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50})

	expected := decimal.NewFromInt(100)
	out, err := g.MinOutputBps(expected, 50)
	if err != nil {
		t.Fatalf("MinOutputBps: %v", err)
	}
	if !out.Equal(decimal.RequireFromString("99.5")) {
		t.Fatalf("expected 99.5, got %s", out)
	}

	zero, _ := g.MinOutputBps(expected, 0)
	if !zero.Equal(expected) {
		t.Fatalf("bps=0 must return expected unchanged, got %s", zero)
	}

	full, _ := g.MinOutputBps(expected, 10000)
	if !full.IsZero() {
		t.Fatalf("bps=10000 must return zero, got %s", full)
	}

	if _, err := g.MinOutputBps(expected, 10001); err == nil {
		t.Fatal("out-of-range bps must error")
	}
}

func TestMinOutputMonotone(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50})
	expected := decimal.RequireFromString("1234.5678")

	prev := expected
	for _, bps := range []int64{0, 1, 10, 50, 100, 500, 2500, 9999, 10000} {
		out, err := g.MinOutputBps(expected, bps)
		if err != nil {
			t.Fatalf("MinOutputBps(%d): %v", bps, err)
		}
		if out.GreaterThan(prev) {
			t.Fatalf("min output must be non-increasing in bps, %s > %s at %d", out, prev, bps)
		}
		prev = out
	}
}

func TestMaxInputMirror(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50})
	expected := decimal.NewFromInt(100)

	same, _ := g.MaxInputBps(expected, 0)
	if !same.Equal(expected) {
		t.Fatalf("bps=0 must return expected, got %s", same)
	}

	double, _ := g.MaxInputBps(expected, 10000)
	if !double.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("bps=10000 must double, got %s", double)
	}

	prev := decimal.Zero
	for _, bps := range []int64{0, 25, 50, 5000, 10000} {
		in, err := g.MaxInputBps(expected, bps)
		if err != nil {
			t.Fatalf("MaxInputBps(%d): %v", bps, err)
		}
		if in.LessThan(prev) {
			t.Fatalf("max input must be non-decreasing in bps")
		}
		prev = in
	}
}

func TestDefaultToleranceApplied(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 100})
	out := g.MinOutput(decimal.NewFromInt(100))
	if !out.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("default 100 bps should yield 99, got %s", out)
	}
	in := g.MaxInput(decimal.NewFromInt(100))
	if !in.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("default 100 bps should yield 101, got %s", in)
	}
}

func TestValidatePriceDeviation(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50, MaxDeviationPct: decimal.NewFromInt(2)})

	// 3200 vs 3040 is a ~5.26% deviation, well past the 2% tolerance.
	err := g.ValidatePriceDeviation(decimal.NewFromInt(3200), decimal.NewFromInt(3040))
	if !errors.Is(err, ErrPriceDeviationExceeded) {
		t.Fatalf("expected ErrPriceDeviationExceeded, got %v", err)
	}

	// Exactly on the boundary passes.
	if err := g.ValidatePriceDeviation(decimal.NewFromInt(102), decimal.NewFromInt(100)); err != nil {
		t.Fatalf("boundary deviation must pass: %v", err)
	}
	// One hundredth over fails.
	err = g.ValidatePriceDeviationWithin(decimal.RequireFromString("102.01"), decimal.NewFromInt(100), decimal.NewFromInt(2))
	if !errors.Is(err, ErrPriceDeviationExceeded) {
		t.Fatalf("deviation above boundary must fail, got %v", err)
	}
}

func TestZeroOraclePriceIsFatal(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50})
	if _, err := g.DeviationPct(decimal.NewFromInt(1), decimal.Zero); !errors.Is(err, ErrZeroOraclePrice) {
		t.Fatalf("zero oracle price must be fatal, got %v", err)
	}
	if err := g.ValidatePriceDeviation(decimal.NewFromInt(1), decimal.Zero); !errors.Is(err, ErrZeroOraclePrice) {
		t.Fatalf("zero oracle price must not silently pass, got %v", err)
	}
}

func TestPriceImpactSign(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50})

	// Execution price 2.0 vs oracle 1.9: better than reference, positive.
	impact, err := g.PriceImpact(decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.RequireFromString("1.9"))
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if impact.Sign() <= 0 {
		t.Fatalf("expected positive impact, got %s", impact)
	}

	// Execution price 2.0 vs oracle 2.1: worse than reference, negative.
	impact, err = g.PriceImpact(decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.RequireFromString("2.1"))
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if impact.Sign() >= 0 {
		t.Fatalf("expected negative impact, got %s", impact)
	}
}

func TestDeadlineRoundTrip(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50, DeadlineSeconds: 600})

	deadline := g.Deadline(300)
	if err := g.ValidateDeadline(deadline); err != nil {
		t.Fatalf("fresh deadline must validate: %v", err)
	}

	past := time.Now().Unix() - 10
	if err := g.ValidateDeadline(past); !errors.Is(err, ErrInvalidDeadline) {
		t.Fatalf("past deadline must fail with ErrInvalidDeadline, got %v", err)
	}
}

func TestSlippageFromAmountsInverse(t *testing.T) {
	g := newGuard(t, Options{SlippageBps: 50})
	expected := decimal.NewFromInt(100)

	for _, bps := range []int64{0, 1, 25, 50, 100, 250, 1000, 9999} {
		minimum, err := g.MinOutputBps(expected, bps)
		if err != nil {
			t.Fatalf("MinOutputBps(%d): %v", bps, err)
		}
		got := g.SlippageFromAmounts(expected, minimum)
		if got != bps {
			t.Fatalf("round trip at %d bps: got %d", bps, got)
		}
	}

	if got := g.SlippageFromAmounts(decimal.Zero, decimal.NewFromInt(1)); got != 0 {
		t.Fatalf("expected 0 for zero expected amount, got %d", got)
	}
}

func TestFormatBps(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00%",
		50:    "0.50%",
		100:   "1.00%",
		10000: "100.00%",
	}
	for bps, want := range cases {
		if got := FormatBps(bps); got != want {
			t.Fatalf("FormatBps(%d) = %q, want %q", bps, got, want)
		}
	}
}
