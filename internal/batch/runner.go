// Package batch evaluates the payments of many blocks on a bounded pool of
// workers.
package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/observability"
)

// DefaultWorkers is the default pool size.
const DefaultWorkers = 12

// PaymentSource loads the payments of a block.
type PaymentSource interface {
	BlockPayments(ctx context.Context, blockHash string) ([]domain.Payment, error)
}

// Estimator prices a payment amount in millisatoshi.
type Estimator interface {
	EstimateForPayment(ctx context.Context, amountMsat float64) (fee float64, ok bool, err error)
}

// Result holds the merged outcome of a run. Slices are in completion order;
// aggregates over them do not depend on it.
type Result struct {
	Totals   []int64                  // amounts of every payment seen (sat)
	Overpaid []domain.OverpaidPayment // payments whose chain fee exceeds the estimate
	Blocks   int                      // blocks evaluated
	Unpriced int                      // payments without an estimate
}

// Runner evaluates blocks concurrently. Workers share the estimator, which
// must be safe for concurrent use.
type Runner struct {
	source  PaymentSource
	est     Estimator
	workers int
}

// NewRunner creates a Runner with the given pool size.
func NewRunner(source PaymentSource, est Estimator, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{source: source, est: est, workers: workers}
}

// Run evaluates every block in blockHashes, one block per unit of work.
// A source failure or ctx cancellation aborts the run; payments without an
// estimate are counted and skipped.
func (r *Runner) Run(ctx context.Context, blockHashes []string) (*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var (
		mu     sync.Mutex
		result = &Result{}
	)

	for _, hash := range blockHashes {
		hash := hash
		g.Go(func() error {
			part, err := r.evaluateBlock(ctx, hash)
			if err != nil {
				return err
			}

			mu.Lock()
			result.Totals = append(result.Totals, part.Totals...)
			result.Overpaid = append(result.Overpaid, part.Overpaid...)
			result.Blocks++
			result.Unpriced += part.Unpriced
			mu.Unlock()

			observability.RecordBlockProcessed()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Infof("Evaluated %d blocks: %d payments, %d overpaid, %d without estimate",
		result.Blocks, len(result.Totals), len(result.Overpaid), result.Unpriced)
	return result, nil
}

func (r *Runner) evaluateBlock(ctx context.Context, hash string) (*Result, error) {
	payments, err := r.source.BlockPayments(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("load block %s: %w", hash, err)
	}

	part := &Result{Totals: make([]int64, 0, len(payments))}
	for _, p := range payments {
		part.Totals = append(part.Totals, p.AmountSat)

		feeMsat, ok, err := r.est.EstimateForPayment(ctx, float64(p.AmountSat)*1000)
		if err != nil {
			return nil, err
		}
		if !ok {
			part.Unpriced++
			observability.RecordPayment(false)
			continue
		}

		lnFee := feeMsat / 1000
		overpaid := lnFee < float64(p.ChainFeeSat)
		observability.RecordPayment(overpaid)
		if overpaid {
			part.Overpaid = append(part.Overpaid, domain.OverpaidPayment{
				BlockHeight: p.BlockHeight,
				TxID:        p.TxID,
				Vout:        p.Vout,
				AmountSat:   p.AmountSat,
				ChainFeeSat: p.ChainFeeSat,
				LNFeeSat:    lnFee,
			})
		}
	}

	log.Debugf("Block %s: %d payments, %d overpaid", hash, len(part.Totals), len(part.Overpaid))
	return part, nil
}
