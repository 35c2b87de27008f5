package pathfind

import "lightning-fee-lab/internal/domain"

// candidate is a tentative route to node, kept on the frontier until popped.
type candidate struct {
	node        domain.Node
	price       float64
	fixedFee    float64
	relativeFee float64
	hops        int

	// prev links back to the candidate this one was expanded from.
	prev *candidate
}

// path rebuilds the node sequence from origin to c.
func (c *candidate) path() []domain.Node {
	nodes := make([]domain.Node, c.hops+1)
	for cur, i := c, c.hops; cur != nil; cur, i = cur.prev, i-1 {
		nodes[i] = cur.node
	}
	return nodes
}

// candidateHeap is a min-heap keyed on (price, hops, node).
// The secondary keys make pops deterministic when prices tie.
type candidateHeap []*candidate

// Len returns the number of candidates in the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (h candidateHeap) Len() int { return len(h) }

// Less returns whether the candidate with index i should pop before j.
//
// NOTE: This is part of the heap.Interface implementation.
func (h candidateHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.price != b.price {
		return a.price < b.price
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	return a.node < b.node
}

// Swap swaps the candidates at the passed indices.
//
// NOTE: This is part of the heap.Interface implementation.
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push pushes the passed item onto the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (h *candidateHeap) Push(x interface{}) {
	*h = append(*h, x.(*candidate))
}

// Pop removes the lowest-price candidate from the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
