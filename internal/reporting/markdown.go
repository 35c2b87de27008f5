package reporting

import (
	"fmt"
	"strings"

	"lightning-fee-lab/internal/domain"
)

// RenderLadderLog renders one "estimate(<= X): a + b * sat" line per rung.
// Rungs without data are reported as such.
func RenderLadderLog(rows []LadderRow) []string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		if !r.HasData {
			lines = append(lines, fmt.Sprintf("estimate(<= %d): no route", r.CeilingSat))
			continue
		}
		lines = append(lines, fmt.Sprintf("estimate(<= %d): %g + %g * sat", r.CeilingSat, r.FixedFeeSat, r.RelativeFee))
	}
	return lines
}

// RenderDayMarkdown renders a day aggregate and the ladder it was priced with.
func RenderDayMarkdown(agg *domain.DayAggregate, ladder []LadderRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Fee Comparison %s\n\n", agg.DayKey()))

	// Totals
	sb.WriteString("## Totals\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Payments | %d |\n", agg.TotalN))
	sb.WriteString(fmt.Sprintf("| Amount (sat) | %d |\n", agg.TotalAmount))
	sb.WriteString(fmt.Sprintf("| Overpaid Payments | %d |\n", agg.OverpaidN))
	sb.WriteString(fmt.Sprintf("| Overpaid Share | %.2f%% |\n", share(agg.OverpaidN, agg.TotalN)))
	sb.WriteString(fmt.Sprintf("| Overpaid Amount (sat) | %d |\n", agg.OverpaidAmount))
	sb.WriteString(fmt.Sprintf("| Overpaid Chain Fee (sat) | %d |\n", agg.OverpaidChainFee))
	sb.WriteString(fmt.Sprintf("| Overpaid LN Fee (sat) | %.3f |\n", agg.OverpaidLNFee))
	sb.WriteString("\n")

	// Ladder
	sb.WriteString("## Fee Estimator\n\n")
	if len(ladder) > 0 {
		sb.WriteString("| Up To (sat) | Fixed (sat) | Relative | Samples |\n")
		sb.WriteString("|-------------|-------------|----------|---------|\n")
		for _, r := range ladder {
			if !r.HasData {
				sb.WriteString(fmt.Sprintf("| %d | - | - | 0 |\n", r.CeilingSat))
				continue
			}
			sb.WriteString(fmt.Sprintf("| %d | %.3f | %.6f | %d |\n", r.CeilingSat, r.FixedFeeSat, r.RelativeFee, r.Samples))
		}
	} else {
		sb.WriteString("No estimator ladder available.\n")
	}
	sb.WriteString("\n")

	// Deciles
	sb.WriteString("## Overpaid Deciles\n\n")
	if len(agg.QuantAmount) > 0 {
		sb.WriteString("| Decile | Amount | Chain Fee | LN Fee | Difference |\n")
		sb.WriteString("|--------|--------|-----------|--------|------------|\n")
		for i := range agg.QuantAmount {
			sb.WriteString(fmt.Sprintf("| %d0%% | %.1f | %.1f | %.3f | %.3f |\n",
				i+1, agg.QuantAmount[i], at(agg.QuantChainFee, i), at(agg.QuantLNFee, i), at(agg.QuantDiff, i)))
		}
	} else {
		sb.WriteString("Not enough overpaid payments for deciles.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func share(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
