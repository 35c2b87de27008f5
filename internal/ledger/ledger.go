// Package ledger turns block transactions into payments.
//
// Every non-coinbase output is treated as a payment unless it is dust or
// obvious change. The transaction fee is split evenly over the payments of
// the transaction.
package ledger

import (
	"context"
	"fmt"

	"lightning-fee-lab/internal/domain"
)

// Filtering thresholds.
const (
	MaxOutputs        = 50      // transactions with more outputs are skipped (coinjoins, batch payouts)
	DustLimitSat      = 100     // outputs below this value are not payments
	ChangeMinTotalSat = 100_000 // change detection only applies above this output sum
	ChangeShare       = 0.90    // an output above this share of the output sum is change
)

// Outpoint references a transaction output.
type Outpoint struct {
	TxID string
	Vout uint32
}

// Output is a transaction output.
type Output struct {
	N        uint32
	ValueSat int64
}

// Tx is the subset of a transaction needed to derive payments.
type Tx struct {
	TxID     string
	Coinbase bool
	Inputs   []Outpoint
	Outputs  []Output
}

// InputResolver looks up the value of a previous output.
type InputResolver interface {
	OutputValue(ctx context.Context, op Outpoint) (int64, error)
}

// Payments returns the payments contained in txs, mined at height.
// Input values are resolved only for transactions that can yield payments.
// A resolver error aborts the extraction.
func Payments(ctx context.Context, height int64, txs []Tx, resolver InputResolver) ([]domain.Payment, error) {
	var payments []domain.Payment

	for _, tx := range txs {
		if tx.Coinbase || len(tx.Outputs) > MaxOutputs {
			continue
		}

		var outputSum int64
		for _, out := range tx.Outputs {
			outputSum += out.ValueSat
		}
		if outputSum == 0 {
			continue
		}

		selected := selectPayments(tx.Outputs, outputSum)
		if len(selected) == 0 {
			continue
		}

		var inputSum int64
		for _, in := range tx.Inputs {
			v, err := resolver.OutputValue(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("tx %s input %s:%d: %w", tx.TxID, in.TxID, in.Vout, err)
			}
			inputSum += v
		}

		feeShare := (inputSum - outputSum) / int64(len(selected))
		for _, out := range selected {
			payments = append(payments, domain.Payment{
				BlockHeight: height,
				TxID:        tx.TxID,
				Vout:        out.N,
				AmountSat:   out.ValueSat,
				ChainFeeSat: feeShare,
			})
		}
	}

	return payments, nil
}

// selectPayments drops dust and obvious change.
func selectPayments(outputs []Output, outputSum int64) []Output {
	selected := make([]Output, 0, len(outputs))
	for _, out := range outputs {
		if out.ValueSat < DustLimitSat {
			continue
		}
		if isChange(out.ValueSat, outputSum, len(outputs)) {
			continue
		}
		selected = append(selected, out)
	}
	return selected
}

func isChange(value, outputSum int64, outputs int) bool {
	return outputs > 1 &&
		outputSum > ChangeMinTotalSat &&
		float64(value)/float64(outputSum) > ChangeShare
}
