package profit

import (
	"fmt"
	"strings"
)

// renderBreakdown produces the deterministic multi-section text report
// attached to every MoveProfitability.
func renderBreakdown(move CandidateMove, result MoveProfitability, thresholds Thresholds) string {
	var b strings.Builder

	b.WriteString("REVENUE:\n")
	fmt.Fprintf(&b, "  Current APY:        %s%%\n", move.CurrentAPY.StringFixed(2))
	fmt.Fprintf(&b, "  Target APY:         %s%%\n", move.TargetAPY.StringFixed(2))
	fmt.Fprintf(&b, "  APY improvement:    %s%%\n", result.APYImprovement.StringFixed(2))
	fmt.Fprintf(&b, "  Position size:      $%s\n", move.PositionUSD.StringFixed(2))
	fmt.Fprintf(&b, "  Annual gain:        $%s\n", result.AnnualGainUSD.StringFixed(2))

	b.WriteString("COSTS:\n")
	fmt.Fprintf(&b, "  Gas withdraw:       $%s\n", result.Costs.GasWithdraw.StringFixed(4))
	fmt.Fprintf(&b, "  Gas approve:        $%s\n", result.Costs.GasApprove.StringFixed(4))
	fmt.Fprintf(&b, "  Gas swap:           $%s\n", result.Costs.GasSwap.StringFixed(4))
	fmt.Fprintf(&b, "  Gas deposit:        $%s\n", result.Costs.GasDeposit.StringFixed(4))
	fmt.Fprintf(&b, "  Slippage cost:      $%s\n", result.Costs.SlippageCost.StringFixed(4))
	fmt.Fprintf(&b, "  Protocol fees:      $%s\n", result.Costs.ProtocolFees.StringFixed(4))
	fmt.Fprintf(&b, "  Total cost:         $%s\n", result.Costs.Total().StringFixed(4))

	b.WriteString("PROFITABILITY:\n")
	fmt.Fprintf(&b, "  Net gain (year 1):  $%s (minimum $%s)\n",
		result.NetGainFirstYear.StringFixed(2), thresholds.MinAnnualGainUSD.StringFixed(2))
	if result.BreakEvenDays >= InfiniteSentinel {
		fmt.Fprintf(&b, "  Break-even:         never (maximum %d days)\n", thresholds.MaxBreakEvenDays)
	} else {
		fmt.Fprintf(&b, "  Break-even:         %d days (maximum %d days)\n",
			result.BreakEvenDays, thresholds.MaxBreakEvenDays)
	}
	fmt.Fprintf(&b, "  ROI on costs:       %s%%\n", result.ROIOnCosts.StringFixed(2))

	b.WriteString("DECISION:\n")
	if result.IsProfitable {
		b.WriteString("  PROFITABLE\n")
	} else {
		fmt.Fprintf(&b, "  UNPROFITABLE: %s\n", strings.Join(result.RejectionReasons, "; "))
	}

	return b.String()
}
