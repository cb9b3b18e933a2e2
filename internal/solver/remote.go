package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"graph-allocopt/internal/observability"
)

// Default configuration values. Solves can run for minutes under
// ModeOptimal, so the timeout is generous.
const (
	DefaultTimeout     = 5 * time.Minute
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultBackoffMult = 2.0
)

// RemoteEngine implements Engine against an optimization service over
// HTTP. The service owns the convergence mathematics; this client owns
// the wire protocol and failure mapping.
type RemoteEngine struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	log         zerolog.Logger
}

// RemoteOption configures RemoteEngine.
type RemoteOption func(*RemoteEngine)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(e *RemoteEngine) {
		e.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) RemoteOption {
	return func(e *RemoteEngine) {
		e.maxRetries = n
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(e *RemoteEngine) {
		e.client = client
	}
}

// WithLogger sets the engine client logger.
func WithLogger(log zerolog.Logger) RemoteOption {
	return func(e *RemoteEngine) {
		e.log = log
	}
}

// NewRemoteEngine creates a new remote engine client.
func NewRemoteEngine(endpoint string, opts ...RemoteOption) *RemoteEngine {
	e := &RemoteEngine{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Engine = (*RemoteEngine)(nil)

// solveRequest is the wire shape of a solve call.
type solveRequest struct {
	Omega            []float64 `json:"omega"`
	Signal           []float64 `json:"signal"`
	TotalSignal      float64   `json:"total_signal"`
	AvailableStake   float64   `json:"available_stake"`
	Issuance         float64   `json:"issuance"`
	GasPerAllocation float64   `json:"gas_per_allocation"`
	MaxAllocations   int       `json:"max_allocations"`
	RewardableIxs    []int     `json:"rewardable_ixs"`
	Mode             string    `json:"mode"`
}

// solveResponse is the wire shape of a solve result. A diverged solve
// reports itself explicitly rather than returning empty vectors.
type solveResponse struct {
	Diverged      bool        `json:"diverged"`
	Error         string      `json:"error,omitempty"`
	Candidates    [][]float64 `json:"candidates"`
	NonzeroCounts []int       `json:"nonzero_counts"`
	Profits       [][]float64 `json:"profits"`
}

// Solve performs one solve call. Transport failures and 5xx responses are
// retried with exponential backoff; a reported divergence is returned as
// ErrDiverged without retry.
func (e *RemoteEngine) Solve(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(solveRequest{
		Omega:            req.Omega,
		Signal:           req.Signal,
		TotalSignal:      req.TotalSignal,
		AvailableStake:   req.AvailableStake,
		Issuance:         req.Issuance,
		GasPerAllocation: req.GasPerAllocation,
		MaxAllocations:   req.MaxAllocations,
		RewardableIxs:    req.RewardableIxs,
		Mode:             string(req.Mode),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal solve request: %w", err)
	}

	delay := e.retryDelay
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * e.backoffMult)
			if delay > e.maxDelay {
				delay = e.maxDelay
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		start := time.Now()
		httpResp, err := e.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if httpResp.StatusCode >= http.StatusInternalServerError || httpResp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(respBody))
			continue
		}
		if httpResp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(respBody))
		}

		var result solveResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}

		if result.Diverged {
			return nil, ErrDiverged
		}
		if result.Error != "" {
			return nil, fmt.Errorf("solver error: %s", result.Error)
		}

		observability.RecordSolverCall(string(req.Mode), time.Since(start).Seconds())

		e.log.Debug().
			Int("candidates", len(result.Candidates)).
			Dur("elapsed", time.Since(start)).
			Msg("solve completed")

		return &Response{
			Candidates:    result.Candidates,
			NonzeroCounts: result.NonzeroCounts,
			Profits:       result.Profits,
		}, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
