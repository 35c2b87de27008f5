// Package graph holds the in-memory channel graph of the routing network.
// A Graph is built once from a network snapshot and never mutated afterwards,
// so it can be shared by any number of concurrent searches.
package graph

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"lightning-fee-lab/internal/domain"
)

// ErrMalformedChannel is returned when a snapshot record cannot be used as an edge.
var ErrMalformedChannel = errors.New("malformed channel record")

// Graph maps every node to its outgoing channels.
type Graph struct {
	neighbors map[domain.Node][]domain.Channel
	channels  int
}

// Load builds a Graph from a list of channel records.
// Parallel channels between the same ordered pair are all kept.
// Any malformed record fails the whole load.
func Load(channels []domain.Channel) (*Graph, error) {
	g := &Graph{
		neighbors: make(map[domain.Node][]domain.Channel),
	}

	for i, ch := range channels {
		if err := validate(ch); err != nil {
			return nil, fmt.Errorf("channel %d (%s -> %s): %w", i, ch.Source, ch.Destination, err)
		}
		g.neighbors[ch.Source] = append(g.neighbors[ch.Source], ch)
		g.channels++
	}

	log.Debugf("Loaded channel graph: %d nodes with outgoing channels, %d channels",
		len(g.neighbors), g.channels)

	return g, nil
}

func validate(ch domain.Channel) error {
	switch {
	case ch.Source == "" || ch.Destination == "":
		return fmt.Errorf("%w: missing endpoint", ErrMalformedChannel)
	case ch.FeeBaseMsat < 0:
		return fmt.Errorf("%w: negative base fee %d", ErrMalformedChannel, ch.FeeBaseMsat)
	case ch.FeeRatePPM < 0:
		return fmt.Errorf("%w: negative fee rate %d", ErrMalformedChannel, ch.FeeRatePPM)
	case ch.CapacityMsat < 0:
		return fmt.Errorf("%w: negative capacity %d", ErrMalformedChannel, ch.CapacityMsat)
	}
	return nil
}

// Neighbors returns the outgoing channels of node.
// Unknown nodes yield an empty sequence.
func (g *Graph) Neighbors(node domain.Node) iter.Seq[domain.Channel] {
	return func(yield func(domain.Channel) bool) {
		for _, ch := range g.neighbors[node] {
			if !yield(ch) {
				return
			}
		}
	}
}

// OutDegree returns the number of outgoing channels of node.
func (g *Graph) OutDegree(node domain.Node) int {
	return len(g.neighbors[node])
}

// Nodes returns every node that has at least one outgoing channel, sorted.
func (g *Graph) Nodes() []domain.Node {
	nodes := make([]domain.Node, 0, len(g.neighbors))
	for n := range g.neighbors {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// NodeCount returns the number of nodes with outgoing channels.
func (g *Graph) NodeCount() int {
	return len(g.neighbors)
}

// ChannelCount returns the number of directed channels.
func (g *Graph) ChannelCount() int {
	return g.channels
}
