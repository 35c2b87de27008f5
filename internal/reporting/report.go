package reporting

import (
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/estimator"
)

// DayReport bundles everything rendered for one computed day.
type DayReport struct {
	GeneratedAt time.Time
	Day         *domain.DayAggregate
	Ladder      []LadderRow             // empty when the ladder is unknown
	Overpaid    []domain.OverpaidPayment // ordered by (height, txid, vout)
}

// LadderRow is one estimator rung expressed in satoshi.
type LadderRow struct {
	CeilingSat  int64
	FixedFeeSat float64
	RelativeFee float64 // fee per unit of amount, unit independent
	Samples     int
	HasData     bool
}

// LadderRows converts the msat rungs of l into satoshi rows.
// A nil ladder yields no rows.
func LadderRows(l *estimator.Ladder) []LadderRow {
	if l == nil {
		return nil
	}
	rungs := l.Rungs()
	rows := make([]LadderRow, len(rungs))
	for i, r := range rungs {
		rows[i] = LadderRow{
			CeilingSat:  int64(r.Ceiling / 1000),
			FixedFeeSat: r.FixedFee / 1000,
			RelativeFee: r.RelativeFeePerUnit,
			Samples:     r.Samples,
			HasData:     r.HasData,
		}
	}
	return rows
}
