package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CheckName identifies one pipeline safety stage.
type CheckName string

const (
	CheckQuote              CheckName = "quote"
	CheckOraclePrice        CheckName = "oracle_price"
	CheckPriceDeviation     CheckName = "price_deviation"
	CheckSlippageProtection CheckName = "slippage_protection"
	CheckGasEstimation      CheckName = "gas_estimation"
	CheckApproval           CheckName = "approval"
	CheckSimulation         CheckName = "simulation"
	CheckOverall            CheckName = "overall"
)

// checkOrder is the strict execution order of the pipeline stages.
var checkOrder = []CheckName{
	CheckQuote,
	CheckOraclePrice,
	CheckPriceDeviation,
	CheckSlippageProtection,
	CheckGasEstimation,
	CheckApproval,
	CheckSimulation,
	CheckOverall,
}

// SecurityChecks is the ordered outcome of one pipeline run. A stage that was
// never reached is absent; immutable once the run returns it.
type SecurityChecks struct {
	results map[CheckName]bool
	// Error carries the first failure description, empty on success.
	Error string
}

func newSecurityChecks() SecurityChecks {
	return SecurityChecks{results: make(map[CheckName]bool, len(checkOrder))}
}

func (s *SecurityChecks) set(name CheckName, passed bool) {
	s.results[name] = passed
}

func (s *SecurityChecks) fail(name CheckName, reason string) {
	s.results[name] = false
	if s.Error == "" {
		s.Error = reason
	}
}

// Result reports whether a stage was reached and whether it passed.
func (s SecurityChecks) Result(name CheckName) (passed, reached bool) {
	passed, reached = s.results[name]
	return passed, reached
}

// Overall is the AND of every stage that was reached.
func (s SecurityChecks) Overall() bool {
	if len(s.results) == 0 {
		return false
	}
	for _, passed := range s.results {
		if !passed {
			return false
		}
	}
	return true
}

// seal records the overall outcome as its own named check.
func (s *SecurityChecks) seal() {
	overall := true
	for name, passed := range s.results {
		if name == CheckOverall {
			continue
		}
		if !passed {
			overall = false
			break
		}
	}
	s.results[CheckOverall] = overall && len(s.results) > 0
}

// MarshalJSON renders the reached checks plus the error text, for journaling.
func (s SecurityChecks) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.results)+1)
	for name, passed := range s.results {
		out[string(name)] = passed
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return json.Marshal(out)
}

// Summarize renders the fixed-format report with one line per check.
func Summarize(checks SecurityChecks) string {
	var b strings.Builder
	b.WriteString("SECURITY CHECK SUMMARY\n")
	for _, name := range checkOrder {
		passed, reached := checks.Result(name)
		switch {
		case !reached:
			fmt.Fprintf(&b, "  - %s (not reached)\n", name)
		case passed:
			fmt.Fprintf(&b, "  ✓ %s\n", name)
		default:
			fmt.Fprintf(&b, "  ✗ %s\n", name)
		}
	}
	if checks.Error != "" {
		fmt.Fprintf(&b, "  error: %s\n", checks.Error)
	}
	return b.String()
}
