package pathfind

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/graph"
)

func mustLoad(t *testing.T, channels []domain.Channel) *graph.Graph {
	t.Helper()
	g, err := graph.Load(channels)
	require.NoError(t, err)
	return g
}

func TestFindCheapest_DirectEdge(t *testing.T) {
	g := mustLoad(t, []domain.Channel{
		{Source: "A", Destination: "B", FeeBaseMsat: 7, FeeRatePPM: 2500},
	})

	r := FindCheapest(g, "A", "B", 200_000)

	require.True(t, r.Reachable())
	assert.Equal(t, []domain.Node{"A", "B"}, r.Path)
	// 200000 + 7 + 2500*200000/1e6
	assert.InDelta(t, 200_507.0, r.Price, 1e-9)
	assert.InDelta(t, 7.0, r.FixedFee, 1e-9)
	assert.InDelta(t, 500.0, r.RelativeFee, 1e-9)
	assert.InDelta(t, 507.0, r.Fee(), 1e-9)
	assert.Equal(t, 1, r.Hops())
}

func TestFindCheapest_FeesCompoundOnRunningPrice(t *testing.T) {
	g := mustLoad(t, []domain.Channel{
		{Source: "A", Destination: "B", FeeBaseMsat: 1, FeeRatePPM: 0},
		{Source: "B", Destination: "C", FeeBaseMsat: 0, FeeRatePPM: 10_000},
	})

	r := FindCheapest(g, "A", "C", 1000)

	require.True(t, r.Reachable())
	assert.Equal(t, []domain.Node{"A", "B", "C"}, r.Path)
	// relative fee is charged on 1001 (price at B), not on 1000
	assert.InDelta(t, 1011.01, r.Price, 1e-9)
	assert.InDelta(t, 11.01, r.Fee(), 1e-9)
	assert.InDelta(t, 1.0, r.FixedFee, 1e-9)
	assert.InDelta(t, 10.01, r.RelativeFee, 1e-9)
}

func TestFindCheapest_PicksCheaperLongerPath(t *testing.T) {
	g := mustLoad(t, []domain.Channel{
		{Source: "A", Destination: "D", FeeBaseMsat: 100},
		{Source: "A", Destination: "B", FeeBaseMsat: 10},
		{Source: "B", Destination: "C", FeeBaseMsat: 10},
		{Source: "C", Destination: "D", FeeBaseMsat: 10},
	})

	r := FindCheapest(g, "A", "D", 1000)

	assert.Equal(t, []domain.Node{"A", "B", "C", "D"}, r.Path)
	assert.InDelta(t, 1030.0, r.Price, 1e-9)
}

func TestFindCheapest_ParallelChannelsUseCheapest(t *testing.T) {
	g := mustLoad(t, []domain.Channel{
		{Source: "A", Destination: "B", FeeBaseMsat: 50},
		{Source: "A", Destination: "B", FeeBaseMsat: 5},
	})

	r := FindCheapest(g, "A", "B", 1000)
	assert.InDelta(t, 5.0, r.Fee(), 1e-9)
}

func TestFindCheapest_Unreachable(t *testing.T) {
	g := mustLoad(t, []domain.Channel{
		{Source: "A", Destination: "B"},
		{Source: "C", Destination: "A"},
	})

	r := FindCheapest(g, "A", "C", 1000)

	assert.False(t, r.Reachable())
	assert.Nil(t, r.Path)
	assert.True(t, math.IsInf(r.Price, 1))
	assert.True(t, math.IsInf(r.FixedFee, 1))
	assert.True(t, math.IsInf(r.RelativeFee, 1))
}

func TestFindCheapest_EmptyGraph(t *testing.T) {
	g := mustLoad(t, nil)

	r := FindCheapest(g, "A", "B", 1000)
	assert.False(t, r.Reachable())
	assert.True(t, math.IsInf(r.Price, 1))
}

func TestFindCheapest_SameNode(t *testing.T) {
	g := mustLoad(t, nil)

	r := FindCheapest(g, "A", "A", 1000)
	require.True(t, r.Reachable())
	assert.Equal(t, []domain.Node{"A"}, r.Path)
	assert.Equal(t, 0.0, r.Fee())
}

func TestFindCheapest_CycleTerminates(t *testing.T) {
	g := mustLoad(t, []domain.Channel{
		{Source: "A", Destination: "B", FeeBaseMsat: 1},
		{Source: "B", Destination: "C", FeeBaseMsat: 1},
		{Source: "C", Destination: "A", FeeBaseMsat: 1},
		{Source: "B", Destination: "A", FeeBaseMsat: 1},
	})

	r := FindCheapest(g, "A", "Z", 1000)
	assert.False(t, r.Reachable())

	r = FindCheapest(g, "A", "C", 1000)
	require.True(t, r.Reachable())
	assert.Equal(t, []domain.Node{"A", "B", "C"}, r.Path)
}

func TestFindCheapest_NeverRevisitsNodes(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	var channels []domain.Channel
	for i := 0; i < 400; i++ {
		channels = append(channels, domain.Channel{
			Source:      fmt.Sprintf("n%d", rng.IntN(40)),
			Destination: fmt.Sprintf("n%d", rng.IntN(40)),
			FeeBaseMsat: int64(rng.IntN(2000)),
			FeeRatePPM:  int64(rng.IntN(5000)),
		})
	}
	g := mustLoad(t, channels)

	for i := 0; i < 100; i++ {
		r := FindCheapest(g, fmt.Sprintf("n%d", rng.IntN(40)), fmt.Sprintf("n%d", rng.IntN(40)), float64(rng.IntN(10_000_000)))
		if !r.Reachable() {
			continue
		}
		seen := make(map[domain.Node]bool)
		for _, n := range r.Path {
			assert.False(t, seen[n], "node %s revisited in %v", n, r.Path)
			seen[n] = true
		}
		assert.GreaterOrEqual(t, r.Price, 0.0)
		assert.GreaterOrEqual(t, r.FixedFee, 0.0)
		assert.GreaterOrEqual(t, r.RelativeFee, 0.0)
		assert.InDelta(t, r.Price, r.Amount+r.FixedFee+r.RelativeFee, 1e-6)
	}
}

func TestFindCheapest_DeterministicTieBreak(t *testing.T) {
	g := mustLoad(t, []domain.Channel{
		{Source: "A", Destination: "C", FeeBaseMsat: 5},
		{Source: "A", Destination: "B", FeeBaseMsat: 5},
		{Source: "B", Destination: "D", FeeBaseMsat: 5},
		{Source: "C", Destination: "D", FeeBaseMsat: 5},
	})

	for i := 0; i < 10; i++ {
		r := FindCheapest(g, "A", "D", 100)
		assert.Equal(t, []domain.Node{"A", "B", "D"}, r.Path)
	}
}

func TestFindCheapest_CapacityPolicies(t *testing.T) {
	// A->D has capacity between the amount (1000) and the price at A (1050).
	channels := []domain.Channel{
		{Source: "S", Destination: "A", FeeBaseMsat: 50},
		{Source: "A", Destination: "D", FeeBaseMsat: 1, CapacityMsat: 1020},
		{Source: "S", Destination: "D", FeeBaseMsat: 500, CapacityMsat: 1_000_000},
		{Source: "A", Destination: "T", FeeBaseMsat: 1, CapacityMsat: 10},
	}
	g := mustLoad(t, channels)

	tests := []struct {
		policy   CapacityPolicy
		wantPath []domain.Node
	}{
		// price at A is 1050 > capacity 1020: edge rejected
		{CapacityPrice, []domain.Node{"S", "D"}},
		// amount 1000 <= 1020: edge admitted
		{CapacityAmount, []domain.Node{"S", "A", "D"}},
		{CapacityIgnore, []domain.Node{"S", "A", "D"}},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			r := FindCheapest(g, "S", "D", 1000, WithCapacityPolicy(tt.policy))
			assert.Equal(t, tt.wantPath, r.Path)
		})
	}

	r := FindCheapest(g, "S", "T", 1000, WithCapacityPolicy(CapacityAmount))
	assert.False(t, r.Reachable(), "capacity 10 cannot carry 1000")
}

func TestParseCapacityPolicy(t *testing.T) {
	for _, p := range []CapacityPolicy{CapacityPrice, CapacityAmount, CapacityIgnore} {
		got, err := ParseCapacityPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParseCapacityPolicy("bogus")
	assert.Error(t, err)
}

func TestLocalSearcher_RespectsCancellation(t *testing.T) {
	g := mustLoad(t, []domain.Channel{{Source: "A", Destination: "B"}})
	s := NewLocalSearcher(g)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, "A", "B", 10)
	assert.ErrorIs(t, err, context.Canceled)

	r, err := s.Search(context.Background(), "A", "B", 10)
	require.NoError(t, err)
	assert.True(t, r.Reachable())
}

func TestRandomPair_Distinct(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	pool := []domain.Node{"A", "B", "C"}
	for i := 0; i < 200; i++ {
		a, b := RandomPair(rng, pool)
		assert.NotEqual(t, a, b)
	}
}
