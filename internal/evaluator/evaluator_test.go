package evaluator

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/estimator"
	"lightning-fee-lab/internal/graph"
	"lightning-fee-lab/internal/pathfind"
)

// fakeSearcher returns scripted outcomes in call order, then repeats the last.
type fakeSearcher struct {
	mu       sync.Mutex
	outcomes []outcome
	calls    atomic.Int64
}

type outcome struct {
	fee         float64 // absolute fee for the searched amount
	unreachable bool
	err         error
}

func (f *fakeSearcher) Search(ctx context.Context, origin, destination domain.Node, amount float64) (pathfind.Route, error) {
	n := int(f.calls.Add(1)) - 1

	f.mu.Lock()
	o := f.outcomes[min(n, len(f.outcomes)-1)]
	f.mu.Unlock()

	if o.err != nil {
		return pathfind.Route{}, o.err
	}
	if o.unreachable {
		return pathfind.NoRoute(amount), nil
	}
	return pathfind.Route{
		Path:   []domain.Node{origin, destination},
		Amount: amount,
		Price:  amount + o.fee,
	}, nil
}

var testNodes = []domain.Node{"A", "B", "C", "D"}

func newTestEvaluator(t *testing.T, s pathfind.Searcher, cfg Config) *Evaluator {
	t.Helper()
	ev, err := New(s, testNodes, rand.New(rand.NewPCG(7, 11)), cfg)
	require.NoError(t, err)
	return ev
}

func TestNewGrid_Validation(t *testing.T) {
	for _, p := range []float64{0, -0.1, 1, 2, math.NaN()} {
		_, err := NewGrid(p)
		assert.ErrorIs(t, err, ErrInvalidPrecision, "precision %v", p)
	}

	g, err := NewGrid(0.05)
	require.NoError(t, err)
	assert.Equal(t, 0.05, g.Precision())
}

func TestGrid_RoundTripErrorBounded(t *testing.T) {
	for _, p := range []float64{0.01, DefaultPrecision, 0.2, 0.5} {
		g, err := NewGrid(p)
		require.NoError(t, err)
		bound := g.MaxRelativeError()

		for amount := 100_000.0; amount < 1e13; amount *= 1.0137 {
			normalized := g.Amount(g.Normalize(amount))
			relErr := math.Abs(normalized-amount) / amount
			if relErr > bound+1e-9 {
				t.Fatalf("precision %v: amount %v normalized to %v (error %v > %v)", p, amount, normalized, relErr, bound)
			}
		}
	}
}

func TestGrid_SameBucketForNearbyAmounts(t *testing.T) {
	g, err := NewGrid(DefaultPrecision)
	require.NoError(t, err)

	b := g.Normalize(1_000_000)
	assert.Equal(t, b, g.Normalize(g.Amount(b)))
	assert.Equal(t, b, g.Normalize(1_000_000*1.01))
	assert.NotEqual(t, b, g.Normalize(1_000_000*1.2))
}

func TestFeeCache_FirstWriteWins(t *testing.T) {
	c := NewFeeCache()

	_, ok := c.Load(3)
	assert.False(t, ok)

	actual, loaded := c.LoadOrStore(3, Entry{PerUnit: 0.01})
	assert.False(t, loaded)
	assert.Equal(t, 0.01, actual.PerUnit)

	actual, loaded = c.LoadOrStore(3, Entry{Unreachable: true})
	assert.True(t, loaded)
	assert.Equal(t, Entry{PerUnit: 0.01}, actual)

	c.LoadOrStore(4, Entry{Unreachable: true})
	e, ok := c.Load(4)
	require.True(t, ok)
	assert.True(t, e.Unreachable)
	assert.Equal(t, 2, c.Len())
}

func TestNew_Validation(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{{fee: 1}}}
	rng := rand.New(rand.NewPCG(1, 1))

	_, err := New(s, []domain.Node{"A"}, rng, DefaultConfig())
	assert.ErrorIs(t, err, ErrNodePool)

	cfg := DefaultConfig()
	cfg.Attempts = 0
	_, err = New(s, testNodes, rng, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Precision = 0
	_, err = New(s, testNodes, rng, cfg)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestEstimateForPayment_MaxOfSuccesses(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{
		{fee: 10},
		{unreachable: true},
		{fee: 40},
		{fee: 20},
		{fee: 999}, // never reached: sampling stops after three successes
	}}
	ev := newTestEvaluator(t, s, DefaultConfig())

	amount := ev.Grid().Amount(ev.Grid().Normalize(1_000_000))
	fee, ok, err := ev.EstimateForPayment(context.Background(), amount)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 40, fee, 1e-6)
	assert.Equal(t, int64(4), s.calls.Load())

	stats := ev.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(4), stats.Searches)
	assert.Equal(t, int64(1), stats.SampleFailures)
	assert.Equal(t, 1, stats.Buckets)
}

func TestEstimateForPayment_CacheHitScalesPerUnit(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{{fee: 100}}}
	ev := newTestEvaluator(t, s, DefaultConfig())
	ctx := context.Background()

	bucketAmount := ev.Grid().Amount(ev.Grid().Normalize(10_000_000))
	fee, ok, err := ev.EstimateForPayment(ctx, bucketAmount)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 100, fee, 1e-6)
	searches := s.calls.Load()

	// A nearby amount in the same bucket reuses the per-unit fee.
	nearby := bucketAmount * 1.01
	require.Equal(t, ev.Grid().Normalize(bucketAmount), ev.Grid().Normalize(nearby))
	fee, ok, err = ev.EstimateForPayment(ctx, nearby)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 101, fee, 1e-6)
	assert.Equal(t, searches, s.calls.Load())

	// The scaled-back fee stays within the grid's error of the bucket fee.
	assert.LessOrEqual(t, math.Abs(fee-100)/100, ev.Grid().MaxRelativeError())
	assert.Equal(t, int64(1), ev.Stats().Hits)
}

func TestEstimateForPayment_UnreachableMarker(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{{unreachable: true}}}
	ev := newTestEvaluator(t, s, DefaultConfig())
	ctx := context.Background()

	_, ok, err := ev.EstimateForPayment(ctx, 5_000_000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(DefaultAttempts), s.calls.Load())

	// The marker is cached: no new searches for the same bucket.
	_, ok, err = ev.EstimateForPayment(ctx, 5_000_000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(DefaultAttempts), s.calls.Load())
}

func TestEstimateForPayment_LadderFallback(t *testing.T) {
	ladder, err := estimator.NewLadder([]estimator.Rung{
		{Ceiling: 1e7, FixedFee: 1000, RelativeFeePerUnit: 0.001, HasData: true},
	})
	require.NoError(t, err)

	s := &fakeSearcher{outcomes: []outcome{{unreachable: true}}}
	cfg := DefaultConfig()
	cfg.Fallback = ladder
	ev := newTestEvaluator(t, s, cfg)

	fee, ok, err := ev.EstimateForPayment(context.Background(), 5_000_000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 6000, fee, 1e-9)

	// Above the ladder there is still no estimate.
	_, ok, err = ev.EstimateForPayment(context.Background(), 5e7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEstimateForPayment_SearchErrorsExcluded(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{
		{err: errors.New("gateway hiccup")},
		{err: context.DeadlineExceeded},
		{fee: 7},
	}}
	ev := newTestEvaluator(t, s, DefaultConfig())

	amount := ev.Grid().Amount(ev.Grid().Normalize(2_000_000))
	fee, ok, err := ev.EstimateForPayment(context.Background(), amount)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 7, fee, 1e-6)
	assert.Equal(t, int64(2), ev.Stats().SampleFailures)
}

func TestEstimateForPayment_CancelledNotCached(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{{fee: 1}}}
	ev := newTestEvaluator(t, s, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ls := pathfind.NewLocalSearcher(mustGraph(t))
	ev.searcher = ls

	_, _, err := ev.EstimateForPayment(ctx, 1_000_000)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ev.Stats().Buckets)
}

func TestEstimateForPayment_NonPositiveAmount(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{{fee: 1}}}
	ev := newTestEvaluator(t, s, DefaultConfig())

	_, ok, err := ev.EstimateForPayment(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), s.calls.Load())
}

func TestEstimateForPayment_ConcurrentMissesSearchOnce(t *testing.T) {
	s := &fakeSearcher{outcomes: []outcome{{fee: 50}}}
	ev := newTestEvaluator(t, s, DefaultConfig())

	var wg sync.WaitGroup
	fees := make([]float64, 32)
	for i := range fees {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fee, ok, err := ev.EstimateForPayment(context.Background(), 3_000_000)
			if err == nil && ok {
				fees[i] = fee
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(DefaultSuccesses), s.calls.Load())
	for _, fee := range fees {
		assert.InDelta(t, fees[0], fee, 1e-9)
	}
	assert.Equal(t, 1, ev.Stats().Buckets)
}

func TestEstimateForPayment_LocalGraph(t *testing.T) {
	ev, err := New(pathfind.NewLocalSearcher(mustGraph(t)), []domain.Node{"A", "B", "C"},
		rand.New(rand.NewPCG(3, 4)), DefaultConfig())
	require.NoError(t, err)

	fee, ok, err := ev.EstimateForPayment(context.Background(), 1_000_000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, fee, 0.0)
}

// mustGraph is a fully connected three-node network.
func mustGraph(t *testing.T) *graph.Graph {
	t.Helper()
	var channels []domain.Channel
	for _, src := range []domain.Node{"A", "B", "C"} {
		for _, dst := range []domain.Node{"A", "B", "C"} {
			if src != dst {
				channels = append(channels, domain.Channel{Source: src, Destination: dst, FeeBaseMsat: 1000, FeeRatePPM: 100})
			}
		}
	}
	g, err := graph.Load(channels)
	require.NoError(t, err)
	return g
}

// stallingSearcher blocks its first search until the caller's ctx ends and
// answers every later search with a fixed fee.
type stallingSearcher struct {
	started chan struct{}
	calls   atomic.Int64
}

func (s *stallingSearcher) Search(ctx context.Context, origin, destination domain.Node, amount float64) (pathfind.Route, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
		<-ctx.Done()
		return pathfind.Route{}, ctx.Err()
	}
	return pathfind.Route{Path: []domain.Node{origin, destination}, Amount: amount, Price: amount + 50}, nil
}

func TestEstimateForPayment_SharedFillSurvivesOtherCallerCancel(t *testing.T) {
	s := &stallingSearcher{started: make(chan struct{})}
	ev := newTestEvaluator(t, s, DefaultConfig())
	amount := ev.Grid().Amount(ev.Grid().Normalize(3_000_000))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := ev.EstimateForPayment(first, amount)
		firstErr <- err
	}()
	<-s.started

	type estimate struct {
		fee float64
		ok  bool
		err error
	}
	second := make(chan estimate, 1)
	go func() {
		fee, ok, err := ev.EstimateForPayment(context.Background(), amount)
		second <- estimate{fee, ok, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	got := <-second
	require.NoError(t, got.err)
	require.True(t, got.ok)
	assert.InDelta(t, 50, got.fee, 1e-6)
}
