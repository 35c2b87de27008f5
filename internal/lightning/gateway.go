// Package lightning talks to the Lightning Network data sources: a Sparko
// gateway in front of a c-lightning node (channel snapshot, node list and
// delegated route searches) and a PostgREST node roster.
package lightning

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrDataSource marks snapshot, roster or gateway failures, including
// malformed payloads. It is distinct from a search that found no route.
var ErrDataSource = errors.New("lightning data source failure")

// GatewayError is an error reported by the node behind the gateway, such as
// "could not find a route". Gateway errors are not retried.
type GatewayError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RouteNotFound is lightningd's getroute error code for an unreachable
// destination.
const RouteNotFound = 205

// NoRoute reports whether the node answered that no route exists.
func (e *GatewayError) NoRoute() bool {
	return e.Code == RouteNotFound
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d (status %d): %s", e.Code, e.Status, e.Message)
}

// SnapshotSource provides the channel snapshot a graph is built from.
type SnapshotSource interface {
	ListChannels(ctx context.Context) ([]domain.Channel, error)
}

// RosterSource provides candidate nodes for random pair sampling.
type RosterSource interface {
	Roster(ctx context.Context) ([]domain.Node, error)
}

// GatewayClient is a Sparko HTTP client.
type GatewayClient struct {
	endpoint    string
	token       string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// Compile-time interface checks.
var (
	_ SnapshotSource = (*GatewayClient)(nil)
	_ RosterSource   = (*GatewayClient)(nil)
)

// ClientOption configures GatewayClient.
type ClientOption func(*GatewayClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *GatewayClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *GatewayClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *GatewayClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *GatewayClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *GatewayClient) {
		c.client = client
	}
}

// WithInsecureTLS skips certificate verification. Sparko usually runs with
// a self-signed certificate.
func WithInsecureTLS() ClientOption {
	return func(c *GatewayClient) {
		c.client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}
}

// NewGatewayClient creates a client for the Sparko endpoint authenticated
// with the access token.
func NewGatewayClient(endpoint, token string, opts ...ClientOption) *GatewayClient {
	c := &GatewayClient{
		endpoint:    endpoint,
		token:       token,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type gatewayRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params,omitempty"`
}

// call performs a gateway call with retries and exponential backoff.
func (c *GatewayClient) call(ctx context.Context, method string, params []interface{}, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordRPC("gateway", method, time.Since(start).Seconds(), err)
	}()

	body, err := json.Marshal(gatewayRequest{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Access", c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			// Errors reported by lightningd carry a code and message.
			gwErr := &GatewayError{Status: resp.StatusCode}
			if json.Unmarshal(respBody, gwErr) == nil && gwErr.Message != "" {
				return gwErr
			}
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("%w: %s: unmarshal result: %v", ErrDataSource, method, err)
			}
		}

		return nil
	}

	return fmt.Errorf("%w: %s: max retries exceeded: %v", ErrDataSource, method, lastErr)
}

type listChannelsResult struct {
	Channels *[]struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Satoshis    int64  `json:"satoshis"`
		BaseFeeMsat int64  `json:"base_fee_millisatoshi"`
		FeePPM      int64  `json:"fee_per_millionth"`
	} `json:"channels"`
}

// ListChannels returns the directed channels known to the gateway node.
// An unknown capacity is reported as zero.
func (c *GatewayClient) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	var result listChannelsResult
	if err := c.call(ctx, "listchannels", nil, &result); err != nil {
		return nil, fmt.Errorf("list channels: %w", asDataSource(err))
	}
	if result.Channels == nil {
		return nil, fmt.Errorf("%w: listchannels: missing channels field", ErrDataSource)
	}

	channels := make([]domain.Channel, 0, len(*result.Channels))
	for _, ch := range *result.Channels {
		channels = append(channels, domain.Channel{
			Source:       ch.Source,
			Destination:  ch.Destination,
			CapacityMsat: ch.Satoshis * 1000,
			FeeBaseMsat:  ch.BaseFeeMsat,
			FeeRatePPM:   ch.FeePPM,
		})
	}
	log.Debugf("Fetched %d channels", len(channels))
	return channels, nil
}

type listNodesResult struct {
	Nodes *[]struct {
		NodeID string `json:"nodeid"`
	} `json:"nodes"`
}

// ListNodes returns the ids of the nodes known to the gateway node.
func (c *GatewayClient) ListNodes(ctx context.Context) ([]domain.Node, error) {
	var result listNodesResult
	if err := c.call(ctx, "listnodes", nil, &result); err != nil {
		return nil, fmt.Errorf("list nodes: %w", asDataSource(err))
	}
	if result.Nodes == nil {
		return nil, fmt.Errorf("%w: listnodes: missing nodes field", ErrDataSource)
	}

	nodes := make([]domain.Node, 0, len(*result.Nodes))
	for _, n := range *result.Nodes {
		if n.NodeID == "" {
			return nil, fmt.Errorf("%w: listnodes: node without id", ErrDataSource)
		}
		nodes = append(nodes, n.NodeID)
	}
	return nodes, nil
}

// Roster returns every node known to the gateway.
func (c *GatewayClient) Roster(ctx context.Context) ([]domain.Node, error) {
	return c.ListNodes(ctx)
}

// GetInfo returns the id of the gateway's own node.
func (c *GatewayClient) GetInfo(ctx context.Context) (domain.Node, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "getinfo", nil, &result); err != nil {
		return "", fmt.Errorf("get info: %w", asDataSource(err))
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: getinfo: missing id", ErrDataSource)
	}
	return result.ID, nil
}

// RouteHop is one hop of a route returned by GetRoute.
type RouteHop struct {
	ID       string `json:"id"`
	Channel  string `json:"channel"`
	Msatoshi int64  `json:"msatoshi"` // amount forwarded into this hop, fees of later hops included
	Delay    int64  `json:"delay"`
}

// GetRoute asks the gateway node for a route delivering amountMsat to
// target. A GatewayError is returned when lightningd rejects the call; its
// NoRoute method reports an unreachable target.
func (c *GatewayClient) GetRoute(ctx context.Context, target domain.Node, amountMsat int64, riskFactor float64) ([]RouteHop, error) {
	var result struct {
		Route []RouteHop `json:"route"`
	}
	params := []interface{}{target, fmt.Sprintf("%dmsat", amountMsat), riskFactor}
	if err := c.call(ctx, "getroute", params, &result); err != nil {
		return nil, err
	}
	if len(result.Route) == 0 {
		return nil, fmt.Errorf("%w: getroute: empty route", ErrDataSource)
	}
	return result.Route, nil
}

// asDataSource classifies a gateway error reported for a snapshot or roster
// call as a data source failure.
func asDataSource(err error) error {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return fmt.Errorf("%w: %v", ErrDataSource, gwErr)
	}
	return err
}
