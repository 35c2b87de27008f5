package pathfind

import (
	"context"
	"math/rand/v2"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/graph"
	"lightning-fee-lab/internal/observability"
)

// Searcher finds a route for amount between two nodes.
// An unreachable destination is reported as a Route with Reachable() == false
// and a nil error; errors are reserved for failed or timed out lookups.
type Searcher interface {
	Search(ctx context.Context, origin, destination domain.Node, amount float64) (Route, error)
}

// LocalSearcher runs FindCheapest against an in-memory graph.
type LocalSearcher struct {
	graph *graph.Graph
	opts  []Option
}

// NewLocalSearcher creates a Searcher over g.
func NewLocalSearcher(g *graph.Graph, opts ...Option) *LocalSearcher {
	return &LocalSearcher{graph: g, opts: opts}
}

// Compile-time interface check.
var _ Searcher = (*LocalSearcher)(nil)

// Search runs the local cheapest path search.
func (s *LocalSearcher) Search(ctx context.Context, origin, destination domain.Node, amount float64) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	start := time.Now()
	route := FindCheapest(s.graph, origin, destination, amount, s.opts...)
	observability.RecordSearch("local", time.Since(start).Seconds(), route.Reachable())
	return route, nil
}

// RandomPair draws two distinct nodes uniformly from pool.
// pool must hold at least two entries.
func RandomPair(rng *rand.Rand, pool []domain.Node) (domain.Node, domain.Node) {
	n := len(pool)
	i := rng.IntN(n)
	j := rng.IntN(n - 1)
	if j >= i {
		j++
	}
	return pool[i], pool[j]
}
