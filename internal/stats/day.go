package stats

import (
	"time"

	"lightning-fee-lab/internal/domain"
)

// ComputeDay aggregates a day's payment amounts and overpaid payments.
// Sums are order independent; decile slices are never nil.
func ComputeDay(day time.Time, totals []int64, overpaid []domain.OverpaidPayment) *domain.DayAggregate {
	agg := &domain.DayAggregate{
		Day:       domain.TruncateDay(day),
		TotalN:    int64(len(totals)),
		OverpaidN: int64(len(overpaid)),
	}
	for _, amount := range totals {
		agg.TotalAmount += amount
	}

	amounts := make([]float64, len(overpaid))
	chainFees := make([]float64, len(overpaid))
	lnFees := make([]float64, len(overpaid))
	diffs := make([]float64, len(overpaid))
	for i, p := range overpaid {
		agg.OverpaidAmount += p.AmountSat
		agg.OverpaidChainFee += p.ChainFeeSat
		agg.OverpaidLNFee += p.LNFeeSat

		amounts[i] = float64(p.AmountSat)
		chainFees[i] = float64(p.ChainFeeSat)
		lnFees[i] = p.LNFeeSat
		diffs[i] = float64(p.ChainFeeSat) - p.LNFeeSat
	}

	agg.QuantAmount = Quantiles(amounts, Deciles)
	agg.QuantChainFee = Quantiles(chainFees, Deciles)
	agg.QuantLNFee = Quantiles(lnFees, Deciles)
	agg.QuantDiff = Quantiles(diffs, Deciles)
	return agg
}
