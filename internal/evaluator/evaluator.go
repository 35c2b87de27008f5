package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/estimator"
	"lightning-fee-lab/internal/observability"
	"lightning-fee-lab/internal/pathfind"
)

// Defaults for Config.
const (
	DefaultAttempts  = 7
	DefaultSuccesses = 3
)

// ErrNodePool is returned when fewer than two nodes are available for sampling.
var ErrNodePool = errors.New("evaluator needs at least two nodes to sample")

// Config controls sampling on a cache miss.
type Config struct {
	Precision float64           // log-space grid granularity
	Attempts  int               // searches tried per missing bucket
	Successes int               // stop sampling after this many reachable routes
	Fallback  *estimator.Ladder // consulted for unreachable buckets; may be nil
}

// DefaultConfig returns the default sampling configuration without fallback.
func DefaultConfig() Config {
	return Config{
		Precision: DefaultPrecision,
		Attempts:  DefaultAttempts,
		Successes: DefaultSuccesses,
	}
}

// Stats is a snapshot of evaluator counters.
type Stats struct {
	Hits           int64 // estimates served from the cache
	Misses         int64 // estimates that required sampling
	Searches       int64 // searches issued
	SampleFailures int64 // searches excluded: unreachable, timed out or failed
	Buckets        int   // distinct cached buckets
}

// Evaluator estimates routing fees for payments.
// It is safe for concurrent use by many workers.
type Evaluator struct {
	searcher pathfind.Searcher
	nodes    []domain.Node
	grid     Grid
	cfg      Config
	cache    *FeeCache
	flight   singleflight.Group

	rngMu sync.Mutex
	rng   *rand.Rand

	hits     atomic.Int64
	misses   atomic.Int64
	searches atomic.Int64
	failures atomic.Int64
}

// New creates an Evaluator sampling random pairs from nodes.
func New(searcher pathfind.Searcher, nodes []domain.Node, rng *rand.Rand, cfg Config) (*Evaluator, error) {
	if len(nodes) < 2 {
		return nil, ErrNodePool
	}
	if cfg.Attempts < 1 || cfg.Successes < 1 {
		return nil, fmt.Errorf("attempts (%d) and successes (%d) must be positive", cfg.Attempts, cfg.Successes)
	}
	grid, err := NewGrid(cfg.Precision)
	if err != nil {
		return nil, err
	}

	pool := make([]domain.Node, len(nodes))
	copy(pool, nodes)

	return &Evaluator{
		searcher: searcher,
		nodes:    pool,
		grid:     grid,
		cfg:      cfg,
		cache:    NewFeeCache(),
		rng:      rng,
	}, nil
}

// Grid returns the normalization grid in use.
func (e *Evaluator) Grid() Grid {
	return e.grid
}

// EstimateForPayment returns the estimated routing fee for amountMsat.
//
// ok is false when no estimate is available: every sample for the amount's
// bucket failed and the fallback ladder (if any) has no answer either. The
// returned error is non-nil only when ctx is done.
func (e *Evaluator) EstimateForPayment(ctx context.Context, amountMsat float64) (fee float64, ok bool, err error) {
	if amountMsat <= 0 {
		return 0, false, nil
	}

	bucket := e.grid.Normalize(amountMsat)
	entry, hit := e.cache.Load(bucket)
	observability.RecordCacheLookup(hit)
	if hit {
		e.hits.Add(1)
	} else {
		e.misses.Add(1)
		entry, err = e.fill(ctx, bucket)
		if err != nil {
			return 0, false, err
		}
	}

	if entry.Unreachable {
		if e.cfg.Fallback != nil {
			fee, ok = e.cfg.Fallback.Estimate(amountMsat)
			return fee, ok, nil
		}
		return 0, false, nil
	}
	return entry.PerUnit * amountMsat, true, nil
}

// fill samples bucket once across all concurrent callers and caches the result.
// The flight samples under the ctx of the caller that started it. Callers
// whose own ctx is still live retry when that ctx ends the flight early.
func (e *Evaluator) fill(ctx context.Context, bucket Bucket) (Entry, error) {
	for {
		entry, err := e.fillOnce(ctx, bucket)
		if err != nil && ctx.Err() == nil && isContextErr(err) {
			continue
		}
		return entry, err
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Evaluator) fillOnce(ctx context.Context, bucket Bucket) (Entry, error) {
	v, err, _ := e.flight.Do(strconv.FormatInt(int64(bucket), 10), func() (interface{}, error) {
		// A flight for the same bucket may have finished between Load and Do.
		if entry, ok := e.cache.Load(bucket); ok {
			return entry, nil
		}

		entry, err := e.sample(ctx, e.grid.Amount(bucket))
		if err != nil {
			return nil, err
		}
		entry, _ = e.cache.LoadOrStore(bucket, entry)
		observability.UpdateCacheEntries(e.cache.Len())
		return entry, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (e *Evaluator) sample(ctx context.Context, amount float64) (Entry, error) {
	var (
		successes int
		worst     float64
	)
	for i := 0; i < e.cfg.Attempts && successes < e.cfg.Successes; i++ {
		origin, destination := e.randomPair()

		e.searches.Add(1)
		route, err := e.searcher.Search(ctx, origin, destination, amount)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Entry{}, ctxErr
			}
			e.failures.Add(1)
			reason := "search_error"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			observability.RecordSampleFailure(reason)
			log.Debugf("Sample %s -> %s at %.0f msat failed: %v", origin, destination, amount, err)
			continue
		}
		if !route.Reachable() {
			e.failures.Add(1)
			observability.RecordSampleFailure("unreachable")
			continue
		}

		if fee := route.Fee(); successes == 0 || fee > worst {
			worst = fee
		}
		successes++
	}

	if successes == 0 {
		log.Debugf("Bucket at %.0f msat unreachable after %d attempts", amount, e.cfg.Attempts)
		return Entry{Unreachable: true}, nil
	}
	return Entry{PerUnit: worst / amount}, nil
}

func (e *Evaluator) randomPair() (domain.Node, domain.Node) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return pathfind.RandomPair(e.rng, e.nodes)
}

// Stats returns a snapshot of the evaluator counters.
func (e *Evaluator) Stats() Stats {
	return Stats{
		Hits:           e.hits.Load(),
		Misses:         e.misses.Load(),
		Searches:       e.searches.Load(),
		SampleFailures: e.failures.Load(),
		Buckets:        e.cache.Len(),
	}
}
