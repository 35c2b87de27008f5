package lightning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/observability"
	"lightning-fee-lab/internal/pathfind"
)

// Defaults for delegated searches.
const (
	DefaultSearchTimeout = 10 * time.Second
	DefaultSearchRetries = 1
)

// RemoteSearcher delegates route searches to the gateway node.
//
// The gateway always searches from its own node, so the origin passed to
// Search is ignored and reported routes start at the gateway node.
type RemoteSearcher struct {
	gateway *GatewayClient
	self    domain.Node
	timeout time.Duration
	retries int
}

// Compile-time interface check.
var _ pathfind.Searcher = (*RemoteSearcher)(nil)

// NewRemoteSearcher creates a searcher over gateway. self is the gateway's
// node id (see GatewayClient.GetInfo). Each attempt is bounded by timeout
// and timed out attempts are retried at most retries times.
func NewRemoteSearcher(gateway *GatewayClient, self domain.Node, timeout time.Duration, retries int) *RemoteSearcher {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	if retries < 0 {
		retries = 0
	}
	return &RemoteSearcher{gateway: gateway, self: self, timeout: timeout, retries: retries}
}

// Search asks the gateway for a route of amount msat to destination.
// A route the node cannot find is reported as unreachable with a nil error.
// Any other gateway error is returned wrapped in ErrDataSource.
func (s *RemoteSearcher) Search(ctx context.Context, _, destination domain.Node, amount float64) (pathfind.Route, error) {
	amountMsat := int64(math.Ceil(amount))

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		start := time.Now()
		hops, err := s.getRoute(ctx, destination, amountMsat)
		elapsed := time.Since(start).Seconds()

		var gwErr *GatewayError
		switch {
		case err == nil:
			observability.RecordSearch("remote", elapsed, true)
			return routeFromHops(s.self, hops, amount), nil
		case errors.As(err, &gwErr) && gwErr.NoRoute():
			observability.RecordSearch("remote", elapsed, false)
			return pathfind.NoRoute(amount), nil
		case gwErr != nil:
			// Rejected calls and other node errors are not retried.
			return pathfind.Route{}, fmt.Errorf("%w: %w", ErrDataSource, err)
		case ctx.Err() != nil:
			return pathfind.Route{}, ctx.Err()
		}
		lastErr = err
		log.Debugf("getroute to %s attempt %d failed: %v", destination, attempt+1, err)
	}
	return pathfind.Route{}, lastErr
}

func (s *RemoteSearcher) getRoute(ctx context.Context, destination domain.Node, amountMsat int64) ([]RouteHop, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hops, err := s.gateway.GetRoute(ctx, destination, amountMsat, 0)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", destination, err)
	}
	return hops, nil
}

// routeFromHops builds a Route from getroute hops. The first hop carries the
// amount leaving the origin, fees of every later hop included. getroute does
// not split the fee, so FixedFee and RelativeFee stay zero.
func routeFromHops(self domain.Node, hops []RouteHop, amount float64) pathfind.Route {
	path := make([]domain.Node, 0, len(hops)+1)
	path = append(path, self)
	for _, h := range hops {
		path = append(path, h.ID)
	}
	return pathfind.Route{
		Path:   path,
		Amount: amount,
		Price:  float64(hops[0].Msatoshi),
	}
}
