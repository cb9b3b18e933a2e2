package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"graph-allocopt/internal/deployment"
	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/grt"
	"graph-allocopt/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultPageSize    = 1000
)

// Client implements DataProvider against a Graph Network subgraph GraphQL
// endpoint over HTTP.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	pageSize    int
	log         zerolog.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithPageSize sets the deployments page size.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a new network subgraph client.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		pageSize:    DefaultPageSize,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ DataProvider = (*Client)(nil)

// gqlRequest is a GraphQL HTTP request body.
type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// gqlResponse is a GraphQL HTTP response envelope.
type gqlResponse struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

func (e *gqlError) Error() string {
	return fmt.Sprintf("graphql error: %s", e.Message)
}

const networkQuery = `
query allocopt($indexer: ID!, $first: Int!) {
  indexer(id: $indexer) {
    id
    stakedTokens
    delegatedTokens
    allocations(first: $first) {
      allocatedTokens
      createdAtEpoch
      subgraphDeployment { ipfsHash }
    }
  }
  subgraphDeployments(first: $first, orderBy: signalledTokens, orderDirection: desc) {
    ipfsHash
    signalledTokens
    stakedTokens
    deniedAt
  }
  graphNetworks(first: 1) {
    totalTokensSignalled
    totalSupply
    networkGRTIssuancePerBlock
    epochLength
    currentEpoch
  }
}
`

// Query retrieves one snapshot for the indexer. The constraint set narrows
// the returned deployment universe to the whitelist when one is configured;
// all other preference semantics are applied downstream by the filter.
func (c *Client) Query(ctx context.Context, indexerAddress string, constraints *domain.ConstraintSet) (*Data, error) {
	vars := map[string]interface{}{
		"indexer": indexerAddress,
		"first":   c.pageSize,
	}

	start := time.Now()
	var result networkQueryResult
	err := c.call(ctx, networkQuery, vars, &result)
	observability.RecordNetworkQuery("snapshot", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	data, err := result.toDomain()
	if err != nil {
		return nil, err
	}

	if constraints != nil && len(constraints.Whitelist) > 0 {
		var kept []*domain.SubgraphDeployment
		for _, sg := range data.Subgraphs {
			if constraints.Whitelisted(sg.ID) || constraints.Pinned(sg.ID) || constraints.Frozen(sg.ID) {
				kept = append(kept, sg)
			}
		}
		data.Subgraphs = kept
	}

	c.log.Debug().
		Str("indexer", indexerAddress).
		Int("deployments", len(data.Subgraphs)).
		Int64("epoch", data.Network.CurrentEpoch).
		Msg("network snapshot fetched")

	return data, nil
}

// call performs a GraphQL POST with retries and exponential backoff.
func (c *Client) call(ctx context.Context, query string, vars map[string]interface{}, result interface{}) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
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

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var gqlResp gqlResponse
		if err := json.Unmarshal(respBody, &gqlResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if len(gqlResp.Errors) > 0 {
			// GraphQL errors are not retried
			return &gqlResp.Errors[0]
		}

		if gqlResp.Data == nil {
			return fmt.Errorf("%w: response carried no data", ErrEmptyNetworkData)
		}

		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Raw response shapes. GRT amounts arrive as wei strings.

type networkQueryResult struct {
	Indexer             *rawIndexer       `json:"indexer"`
	SubgraphDeployments []rawDeployment   `json:"subgraphDeployments"`
	GraphNetworks       []rawGraphNetwork `json:"graphNetworks"`
}

type rawIndexer struct {
	ID              string          `json:"id"`
	StakedTokens    string          `json:"stakedTokens"`
	DelegatedTokens string          `json:"delegatedTokens"`
	Allocations     []rawAllocation `json:"allocations"`
}

type rawAllocation struct {
	AllocatedTokens    string `json:"allocatedTokens"`
	CreatedAtEpoch     int64  `json:"createdAtEpoch"`
	SubgraphDeployment struct {
		IPFSHash string `json:"ipfsHash"`
	} `json:"subgraphDeployment"`
}

type rawDeployment struct {
	IPFSHash        string `json:"ipfsHash"`
	SignalledTokens string `json:"signalledTokens"`
	StakedTokens    string `json:"stakedTokens"`
	DeniedAt        int64  `json:"deniedAt"`
}

type rawGraphNetwork struct {
	TotalTokensSignalled       string `json:"totalTokensSignalled"`
	TotalSupply                string `json:"totalSupply"`
	NetworkGRTIssuancePerBlock string `json:"networkGRTIssuancePerBlock"`
	EpochLength                int64  `json:"epochLength"`
	CurrentEpoch               int64  `json:"currentEpoch"`
}

func (r *networkQueryResult) toDomain() (*Data, error) {
	if r.Indexer == nil || len(r.GraphNetworks) == 0 || len(r.SubgraphDeployments) == 0 {
		return nil, ErrEmptyNetworkData
	}

	staked, err := weiField(r.Indexer.StakedTokens, "indexer.stakedTokens")
	if err != nil {
		return nil, err
	}
	delegated, err := weiField(r.Indexer.DelegatedTokens, "indexer.delegatedTokens")
	if err != nil {
		return nil, err
	}

	indexer := &domain.Indexer{
		Address:      r.Indexer.ID,
		StakedTokens: staked.Add(delegated),
	}
	for _, a := range r.Indexer.Allocations {
		id, err := deployment.ToIPFS(a.SubgraphDeployment.IPFSHash)
		if err != nil {
			return nil, fmt.Errorf("indexer allocation: %w", err)
		}
		amount, err := weiField(a.AllocatedTokens, "allocation.allocatedTokens")
		if err != nil {
			return nil, err
		}
		indexer.Allocations = append(indexer.Allocations, domain.Allocation{
			DeploymentID:    id,
			AllocatedTokens: amount,
			CreatedAtEpoch:  a.CreatedAtEpoch,
		})
	}

	subgraphs := make([]*domain.SubgraphDeployment, 0, len(r.SubgraphDeployments))
	for _, d := range r.SubgraphDeployments {
		id, err := deployment.ToIPFS(d.IPFSHash)
		if err != nil {
			return nil, fmt.Errorf("subgraph deployment: %w", err)
		}
		signal, err := weiField(d.SignalledTokens, "deployment.signalledTokens")
		if err != nil {
			return nil, err
		}
		stake, err := weiField(d.StakedTokens, "deployment.stakedTokens")
		if err != nil {
			return nil, err
		}
		subgraphs = append(subgraphs, &domain.SubgraphDeployment{
			ID:              id,
			SignalledTokens: signal,
			StakedTokens:    stake,
			DeniedAt:        d.DeniedAt,
		})
	}

	net := r.GraphNetworks[0]
	totalSignal, err := weiField(net.TotalTokensSignalled, "network.totalTokensSignalled")
	if err != nil {
		return nil, err
	}
	supply, err := weiField(net.TotalSupply, "network.totalSupply")
	if err != nil {
		return nil, err
	}
	// Issuance rate is 1e18 fixed point, e.g. 1000000012184945188.
	issuance, err := weiField(net.NetworkGRTIssuancePerBlock, "network.networkGRTIssuancePerBlock")
	if err != nil {
		return nil, err
	}

	return &Data{
		Indexer:   indexer,
		Subgraphs: subgraphs,
		Network: &domain.NetworkState{
			TotalTokensSignalled: totalSignal,
			TotalSupply:          supply,
			IssuancePerBlock:     issuance,
			BlocksPerEpoch:       net.EpochLength,
			CurrentEpoch:         net.CurrentEpoch,
		},
	}, nil
}

// weiField parses a wei string field into decimal GRT.
func weiField(s, name string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	wei, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s is not an integer: %q", ErrEmptyNetworkData, name, s)
	}
	return grt.FromWei(wei), nil
}
