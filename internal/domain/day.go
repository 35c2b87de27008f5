package domain

import (
	"fmt"
	"time"
)

// DayLayout is the canonical YYYY-MM-DD representation of a day.
const DayLayout = "2006-01-02"

// DayAggregate holds the comparison statistics for one calendar day (UTC).
// Corresponds to days table in PostgreSQL.
type DayAggregate struct {
	Day time.Time `json:"day"` // PRIMARY KEY, midnight UTC

	TotalN      int64 `json:"total_n"`      // payments seen
	TotalAmount int64 `json:"total_amount"` // sum of payment amounts (sat)

	OverpaidN        int64   `json:"overpaid_n"`
	OverpaidAmount   int64   `json:"overpaid_amount"`    // sat
	OverpaidChainFee int64   `json:"overpaid_chain_fee"` // sat
	OverpaidLNFee    float64 `json:"overpaid_ln_fee"`    // sat

	// Deciles (9 cut points) over overpaid payments.
	QuantAmount   []float64 `json:"overpaid_quant_amount"`
	QuantChainFee []float64 `json:"overpaid_quant_chain_fee"`
	QuantLNFee    []float64 `json:"overpaid_quant_ln_fee"`
	QuantDiff     []float64 `json:"overpaid_quant_diff"` // chain fee minus ln fee
}

// DayKey returns the YYYY-MM-DD key of the aggregate day.
func (a *DayAggregate) DayKey() string {
	return a.Day.UTC().Format(DayLayout)
}

// TruncateDay returns midnight UTC of the day containing t.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func outpoint(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}
