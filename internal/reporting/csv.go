package reporting

import (
	"fmt"
	"strings"

	"lightning-fee-lab/internal/domain"
)

// RenderOverpaidCSV renders overpaid payments as CSV string.
func RenderOverpaidCSV(payments []domain.OverpaidPayment) string {
	var sb strings.Builder

	// Header
	sb.WriteString("block_height,txid,vout,amount_sat,chain_fee_sat,ln_fee_sat\n")

	// Rows
	for _, p := range payments {
		sb.WriteString(fmt.Sprintf("%d,%s,%d,%d,%d,%.6f\n",
			p.BlockHeight,
			p.TxID,
			p.Vout,
			p.AmountSat,
			p.ChainFeeSat,
			p.LNFeeSat,
		))
	}

	return sb.String()
}
