package estimator

import (
	"context"
	"fmt"
	"math/rand/v2"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/graph"
	"lightning-fee-lab/internal/pathfind"
)

// Build samples the cheapest path search between random node pairs at every
// ceiling and keeps the worst fixed and per-unit relative fee seen per rung.
//
// Unreachable samples are discarded. A rung where every sample failed has no
// data and its lookups report no estimate. rng is only used by the calling
// goroutine; pass a fixed seed for reproducible ladders.
func Build(ctx context.Context, g *graph.Graph, nodePool []domain.Node, ceilings []float64,
	samplesPerRung int, rng *rand.Rand, opts ...pathfind.Option) (*Ladder, error) {

	if len(nodePool) < 2 {
		return nil, ErrNodePool
	}
	if samplesPerRung < 1 {
		return nil, fmt.Errorf("%w: samples per rung must be positive", ErrInvalidLadder)
	}

	rungs := make([]Rung, 0, len(ceilings))
	for _, ceiling := range ceilings {
		rung := Rung{Ceiling: ceiling}

		for i := 0; i < samplesPerRung; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			origin, destination := pathfind.RandomPair(rng, nodePool)
			route := pathfind.FindCheapest(g, origin, destination, ceiling, opts...)
			if !route.Reachable() {
				continue
			}

			perUnit := route.RelativeFee / ceiling
			if !rung.HasData || route.FixedFee > rung.FixedFee {
				rung.FixedFee = route.FixedFee
			}
			if !rung.HasData || perUnit > rung.RelativeFeePerUnit {
				rung.RelativeFeePerUnit = perUnit
			}
			rung.HasData = true
			rung.Samples++
		}

		if rung.HasData {
			log.Debugf("Rung <= %.0f: %d/%d samples reachable", ceiling, rung.Samples, samplesPerRung)
		} else {
			log.Warnf("Rung <= %.0f: no reachable samples out of %d", ceiling, samplesPerRung)
		}
		rungs = append(rungs, rung)
	}

	return NewLadder(rungs)
}
