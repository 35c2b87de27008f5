package domain

// Payment is a single on-chain output treated as a payment.
// Corresponds to one vout of a non-coinbase transaction.
type Payment struct {
	BlockHeight int64  // block containing the transaction
	TxID        string // transaction id (hex)
	Vout        uint32 // output index
	AmountSat   int64  // output value in satoshi
	ChainFeeSat int64  // share of the transaction fee attributed to this output
}

// OverpaidPayment is a payment whose chain fee exceeded the estimated
// routing network fee for the same amount.
type OverpaidPayment struct {
	BlockHeight int64   `json:"block_height"`
	TxID        string  `json:"txid"`
	Vout        uint32  `json:"vout"`
	AmountSat   int64   `json:"amount_sat"`
	ChainFeeSat int64   `json:"chain_fee_sat"`
	LNFeeSat    float64 `json:"ln_fee_sat"` // estimated routing fee in satoshi
}

// Outpoint returns the txid:vout reference of the payment output.
func (p OverpaidPayment) Outpoint() string {
	return outpoint(p.TxID, p.Vout)
}
