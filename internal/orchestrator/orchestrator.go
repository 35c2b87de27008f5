// Package orchestrator runs the one-day fee comparison pipeline.
// It coordinates: snapshot → ladder → block location → evaluation → storage → publishing
package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"lightning-fee-lab/internal/batch"
	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/estimator"
	"lightning-fee-lab/internal/evaluator"
	"lightning-fee-lab/internal/graph"
	"lightning-fee-lab/internal/lightning"
	"lightning-fee-lab/internal/observability"
	"lightning-fee-lab/internal/pathfind"
	"lightning-fee-lab/internal/reporting"
	"lightning-fee-lab/internal/sink"
	"lightning-fee-lab/internal/stats"
	"lightning-fee-lab/internal/storage"
)

// Errors returned by Run.
var (
	ErrUpToDate = errors.New("next day is not complete yet")
	ErrNoBlocks = errors.New("no blocks found for day")
)

// DefaultSamplesPerRung is the number of searches per estimator rung.
const DefaultSamplesPerRung = 20

// BlockLocator finds the block hashes of a UTC day.
type BlockLocator interface {
	Locate(ctx context.Context, day, today time.Time) ([]string, error)
}

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	DayStore storage.DayStore
	Snapshot lightning.SnapshotSource
	Locator  BlockLocator
	Payments batch.PaymentSource

	// Optional collaborators
	OverpaidStore storage.OverpaidStore // per-payment rows are skipped when nil
	Roster        lightning.RosterSource // graph nodes are sampled when nil
	Searcher      pathfind.Searcher      // in-process search over the snapshot when nil
	Sink          sink.Sink              // nothing is published when nil

	// Tuning
	Workers        int
	Precision      float64
	Attempts       int
	Successes      int
	SamplesPerRung int
	Ceilings       []float64 // msat; estimator.DefaultCeilingsMsat when empty
	CapacityPolicy pathfind.CapacityPolicy
	LadderFallback bool // price unreachable buckets with the ladder
	Seed           uint64

	Day       time.Time        // compute this day instead of the next missing one
	Now       func() time.Time // Injectable clock
	ReportDir string           // markdown and csv reports are written here when set
}

// Orchestrator coordinates one pipeline run.
type Orchestrator struct {
	opts Options
	now  func() time.Time
}

// New creates a new Orchestrator, filling defaults for zero tuning values.
func New(opts Options) (*Orchestrator, error) {
	if opts.DayStore == nil || opts.Snapshot == nil || opts.Locator == nil || opts.Payments == nil {
		return nil, errors.New("orchestrator: day store, snapshot, locator and payments are required")
	}

	defaults := evaluator.DefaultConfig()
	if opts.Workers < 1 {
		opts.Workers = batch.DefaultWorkers
	}
	if opts.Precision == 0 {
		opts.Precision = defaults.Precision
	}
	if opts.Attempts == 0 {
		opts.Attempts = defaults.Attempts
	}
	if opts.Successes == 0 {
		opts.Successes = defaults.Successes
	}
	if opts.SamplesPerRung == 0 {
		opts.SamplesPerRung = DefaultSamplesPerRung
	}
	if len(opts.Ceilings) == 0 {
		opts.Ceilings = estimator.DefaultCeilingsMsat()
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{opts: opts, now: now}, nil
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Day            time.Time
	Nodes          int
	Channels       int
	Blocks         int
	Payments       int
	Overpaid       int
	Unpriced       int
	CacheHits      int64
	CacheMisses    int64
	Searches       int64
	SampleFailures int64
	Ladder         *estimator.Ladder
	Aggregate      *domain.DayAggregate
	ReportPaths    []string
	Duration       time.Duration
}

// Run computes and stores one day.
// Phases:
//  1. Pick the day
//  2. Load snapshot and roster, build the graph and the estimator ladder
//  3. Locate the day's blocks
//  4. Evaluate every block's payments
//  5. Aggregate, store, publish and report
func (o *Orchestrator) Run(ctx context.Context) (res *RunResult, err error) {
	start := o.now()
	wall := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RecordPipelineRun("total", status, time.Since(wall).Seconds())
	}()

	today := domain.TruncateDay(start)
	result := &RunResult{}

	// Phase 1: Day selection
	day, err := o.nextDay(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (select day) failed: %w", err)
	}
	result.Day = day
	log.Infof("Phase 1: Computing %s", day.Format(domain.DayLayout))

	// Phase 2: Graph and estimator
	var (
		g      *graph.Graph
		pool   []domain.Node
		ladder *estimator.Ladder
	)
	err = o.phase("graph", func() error {
		var err error
		g, pool, err = o.loadGraph(ctx)
		if err != nil {
			return err
		}
		ladder, err = estimator.Build(ctx, g, pool, o.opts.Ceilings, o.opts.SamplesPerRung,
			rand.New(rand.NewPCG(o.opts.Seed, 1)), pathfind.WithCapacityPolicy(o.opts.CapacityPolicy))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("phase 2 (graph) failed: %w", err)
	}
	result.Nodes, result.Channels, result.Ladder = g.NodeCount(), g.ChannelCount(), ladder
	log.Infof("Phase 2: Graph with %d nodes and %d channels, %d sampling nodes", g.NodeCount(), g.ChannelCount(), len(pool))
	for _, line := range reporting.RenderLadderLog(reporting.LadderRows(ladder)) {
		log.Info(line)
	}

	// Phase 3: Blocks
	var hashes []string
	err = o.phase("locate", func() error {
		var err error
		hashes, err = o.opts.Locator.Locate(ctx, day, today)
		if err == nil && len(hashes) == 0 {
			err = ErrNoBlocks
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("phase 3 (locate blocks) failed: %w", err)
	}
	result.Blocks = len(hashes)
	log.Infof("Phase 3: %d blocks", len(hashes))

	// Phase 4: Evaluation
	ev, err := o.newEvaluator(g, pool, ladder)
	if err != nil {
		return nil, fmt.Errorf("phase 4 (evaluate) failed: %w", err)
	}
	var batchResult *batch.Result
	err = o.phase("evaluate", func() error {
		var err error
		batchResult, err = batch.NewRunner(o.opts.Payments, ev, o.opts.Workers).Run(ctx, hashes)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("phase 4 (evaluate) failed: %w", err)
	}
	evStats := ev.Stats()
	result.Payments = len(batchResult.Totals)
	result.Overpaid = len(batchResult.Overpaid)
	result.Unpriced = batchResult.Unpriced
	result.CacheHits, result.CacheMisses = evStats.Hits, evStats.Misses
	result.Searches, result.SampleFailures = evStats.Searches, evStats.SampleFailures
	log.Infof("Phase 4: %d payments, %d overpaid, %d unpriced (cache %d hits, %d misses, %d buckets)",
		result.Payments, result.Overpaid, result.Unpriced, evStats.Hits, evStats.Misses, evStats.Buckets)

	// Phase 5: Persist
	agg := stats.ComputeDay(day, batchResult.Totals, batchResult.Overpaid)
	result.Aggregate = agg
	err = o.phase("store", func() error {
		if err := o.opts.DayStore.Insert(ctx, agg); err != nil {
			return fmt.Errorf("insert day: %w", err)
		}
		if o.opts.OverpaidStore != nil {
			if err := o.opts.OverpaidStore.InsertBulk(ctx, day, batchResult.Overpaid); err != nil {
				return fmt.Errorf("insert overpaid payments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("phase 5 (store) failed: %w", err)
	}

	if o.opts.Sink != nil {
		if err := o.opts.Sink.Emit(ctx, sink.TypeDayAggregate, agg); err != nil {
			return nil, fmt.Errorf("phase 5 (publish) failed: %w", err)
		}
	}

	if o.opts.ReportDir != "" {
		gen := reporting.NewGenerator(o.opts.DayStore, o.opts.OverpaidStore).WithClock(o.now)
		report, err := gen.Generate(ctx, day, ladder)
		if err != nil {
			return nil, fmt.Errorf("phase 5 (report) failed: %w", err)
		}
		if o.opts.OverpaidStore == nil {
			report.Overpaid = sortedOverpaid(batchResult.Overpaid)
		}
		result.ReportPaths, err = reporting.WriteFiles(o.opts.ReportDir, report)
		if err != nil {
			return nil, fmt.Errorf("phase 5 (report) failed: %w", err)
		}
	}

	result.Duration = o.now().Sub(start)
	observability.MarkSuccessfulRun(o.now().Unix())
	log.Infof("Pipeline completed for %s: %d of %d payments overpaid",
		day.Format(domain.DayLayout), result.Overpaid, result.Payments)

	return result, nil
}

// nextDay returns the configured day or the day after the last stored one.
// An empty store starts with yesterday.
func (o *Orchestrator) nextDay(ctx context.Context, today time.Time) (time.Time, error) {
	day := domain.TruncateDay(o.opts.Day)
	if o.opts.Day.IsZero() {
		last, ok, err := o.opts.DayStore.LastDay(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if !ok {
			last = today.AddDate(0, 0, -2)
		}
		day = domain.TruncateDay(last).AddDate(0, 0, 1)
	}

	if !day.Before(today) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUpToDate, day.Format(domain.DayLayout))
	}
	return day, nil
}

// loadGraph builds the graph from the snapshot and picks the sampling pool.
func (o *Orchestrator) loadGraph(ctx context.Context) (*graph.Graph, []domain.Node, error) {
	channels, err := o.opts.Snapshot.ListChannels(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list channels: %w", err)
	}
	g, err := graph.Load(channels)
	if err != nil {
		return nil, nil, err
	}

	var pool []domain.Node
	if o.opts.Roster != nil {
		pool, err = o.opts.Roster.Roster(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load roster: %w", err)
		}
	}
	if len(pool) < 2 {
		if pool != nil {
			log.Warnf("Roster has %d nodes, sampling graph nodes instead", len(pool))
		}
		pool = g.Nodes()
	}
	return g, pool, nil
}

func (o *Orchestrator) newEvaluator(g *graph.Graph, pool []domain.Node, ladder *estimator.Ladder) (*evaluator.Evaluator, error) {
	searcher := o.opts.Searcher
	if searcher == nil {
		searcher = pathfind.NewLocalSearcher(g, pathfind.WithCapacityPolicy(o.opts.CapacityPolicy))
	}

	cfg := evaluator.Config{
		Precision: o.opts.Precision,
		Attempts:  o.opts.Attempts,
		Successes: o.opts.Successes,
	}
	if o.opts.LadderFallback {
		cfg.Fallback = ladder
	}
	return evaluator.New(searcher, pool, rand.New(rand.NewPCG(o.opts.Seed, 2)), cfg)
}

func sortedOverpaid(payments []domain.OverpaidPayment) []domain.OverpaidPayment {
	out := slices.Clone(payments)
	slices.SortFunc(out, func(a, b domain.OverpaidPayment) int {
		return cmp.Or(
			cmp.Compare(a.BlockHeight, b.BlockHeight),
			cmp.Compare(a.TxID, b.TxID),
			cmp.Compare(a.Vout, b.Vout),
		)
	})
	return out
}

// phase runs fn and records its outcome.
func (o *Orchestrator) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordPipelineRun(name, status, time.Since(start).Seconds())
	return err
}
