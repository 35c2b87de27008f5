// Package pathfind implements the fee-accumulating cheapest path search over
// the channel graph.
//
// The search is Dijkstra with one twist: the proportional fee of an edge is
// charged on the price accumulated at the node being expanded rather than on
// the original amount, so fees compound hop by hop the way forwarding fees do.
package pathfind

import (
	"container/heap"
	"fmt"
	"strings"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/graph"
)

// CapacityPolicy selects what a channel's capacity is compared against when
// deciding whether the channel can carry the payment.
type CapacityPolicy int

const (
	// CapacityPrice compares capacity with the running price at the node
	// being expanded (amount plus fees so far).
	CapacityPrice CapacityPolicy = iota

	// CapacityAmount compares capacity with the original payment amount.
	CapacityAmount

	// CapacityIgnore disables capacity filtering.
	CapacityIgnore
)

// String returns the policy name accepted by ParseCapacityPolicy.
func (p CapacityPolicy) String() string {
	switch p {
	case CapacityPrice:
		return "price"
	case CapacityAmount:
		return "amount"
	case CapacityIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("CapacityPolicy(%d)", int(p))
	}
}

// ParseCapacityPolicy parses "price", "amount" or "ignore".
func ParseCapacityPolicy(s string) (CapacityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "price", "":
		return CapacityPrice, nil
	case "amount":
		return CapacityAmount, nil
	case "ignore", "none":
		return CapacityIgnore, nil
	default:
		return 0, fmt.Errorf("unknown capacity policy %q", s)
	}
}

// Option configures a search.
type Option func(*options)

type options struct {
	capacity CapacityPolicy
}

// WithCapacityPolicy sets the channel capacity filter.
func WithCapacityPolicy(p CapacityPolicy) Option {
	return func(o *options) {
		o.capacity = p
	}
}

// admits reports whether ch may be used when the node is reached at price.
// Channels with unknown (zero) capacity are always admitted.
func (o *options) admits(ch domain.Channel, amount, price float64) bool {
	if ch.CapacityMsat <= 0 {
		return true
	}
	capacity := float64(ch.CapacityMsat)
	switch o.capacity {
	case CapacityAmount:
		return capacity >= amount
	case CapacityPrice:
		return capacity >= price
	default:
		return true
	}
}

// FindCheapest returns the cheapest route sending amount from origin to
// destination. Amounts and fees share the unit of the graph fees (msat).
// An unreachable destination yields NoRoute(amount).
func FindCheapest(g *graph.Graph, origin, destination domain.Node, amount float64, opts ...Option) Route {
	o := options{capacity: CapacityPrice}
	for _, opt := range opts {
		opt(&o)
	}

	if origin == destination {
		return Route{
			Path:   []domain.Node{origin},
			Amount: amount,
			Price:  amount,
		}
	}

	frontier := &candidateHeap{}
	heap.Push(frontier, &candidate{node: origin, price: amount})
	visited := make(map[domain.Node]struct{})

	for frontier.Len() > 0 {
		cur := heap.Pop(frontier).(*candidate)
		if _, done := visited[cur.node]; done {
			continue
		}

		if cur.node == destination {
			return Route{
				Path:        cur.path(),
				Amount:      amount,
				Price:       cur.price,
				FixedFee:    cur.fixedFee,
				RelativeFee: cur.relativeFee,
			}
		}
		visited[cur.node] = struct{}{}

		for ch := range g.Neighbors(cur.node) {
			if _, done := visited[ch.Destination]; done {
				continue
			}
			if !o.admits(ch, amount, cur.price) {
				continue
			}

			fixed := float64(ch.FeeBaseMsat)
			relative := float64(ch.FeeRatePPM) * cur.price / 1_000_000
			heap.Push(frontier, &candidate{
				node:        ch.Destination,
				price:       cur.price + fixed + relative,
				fixedFee:    cur.fixedFee + fixed,
				relativeFee: cur.relativeFee + relative,
				hops:        cur.hops + 1,
				prev:        cur,
			})
		}
	}

	return NoRoute(amount)
}
