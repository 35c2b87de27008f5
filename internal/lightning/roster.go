package lightning

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/observability"
)

// DefaultRosterRange skips the largest hubs and keeps the next thousand
// nodes by channel count.
const DefaultRosterRange = "250-1250"

// RosterClient reads node ids from a PostgREST nodes table ordered by open
// channel count.
type RosterClient struct {
	baseURL   string
	rangeSpec string
	client    *http.Client
}

// Compile-time interface check.
var _ RosterSource = (*RosterClient)(nil)

// NewRosterClient creates a roster client for baseURL, e.g.
// https://ln.bigsun.xyz. rangeSpec selects rows with a Range header; empty
// means DefaultRosterRange.
func NewRosterClient(baseURL, rangeSpec string, client *http.Client) *RosterClient {
	if rangeSpec == "" {
		rangeSpec = DefaultRosterRange
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &RosterClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		rangeSpec: rangeSpec,
		client:    client,
	}
}

// Roster returns the selected node ids.
func (c *RosterClient) Roster(ctx context.Context) (nodes []domain.Node, err error) {
	start := time.Now()
	defer func() {
		observability.RecordRPC("roster", "nodes", time.Since(start).Seconds(), err)
	}()

	q := url.Values{}
	q.Set("select", "pubkey")
	q.Set("order", "openchannels.desc")
	endpoint := c.baseURL + "/api/nodes?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", c.rangeSpec)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: roster request: %v", ErrDataSource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read roster: %v", ErrDataSource, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("%w: roster status %d: %s", ErrDataSource, resp.StatusCode, string(body))
	}

	var rows []struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode roster: %v", ErrDataSource, err)
	}

	nodes = make([]domain.Node, 0, len(rows))
	for _, row := range rows {
		if row.Pubkey == "" {
			return nil, fmt.Errorf("%w: roster row without pubkey", ErrDataSource)
		}
		nodes = append(nodes, row.Pubkey)
	}
	log.Debugf("Fetched roster of %d nodes", len(nodes))
	return nodes, nil
}
