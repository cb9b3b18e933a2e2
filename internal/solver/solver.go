// Package solver defines the contract between the orchestrator and the
// external optimization engine. The engine's internal mathematics is out of
// scope; only the request/response shapes and failure modes are specified.
package solver

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"graph-allocopt/internal/domain"
)

// ErrDiverged indicates the engine failed to converge on a solution. This
// is an expected occasional outcome under ModeOptimal, not a defect; the
// caller retries the whole orchestration.
var ErrDiverged = errors.New("optimizer failed to converge")

// ErrMalformedResponse indicates the engine returned shapes or counts
// inconsistent with the request.
var ErrMalformedResponse = errors.New("malformed optimizer response")

// Request is the normalized numeric payload for a direct vector solve
// (mode A). Vectors are indexed by eligible deployment, in filter order.
type Request struct {
	Omega            []float64      // existing stake per deployment, GRT (fudged away from zero)
	Signal           []float64      // curation signal per deployment, GRT
	TotalSignal      float64        // network-wide signal, GRT
	AvailableStake   float64        // stake budget sigma, GRT
	Issuance         float64        // new tokens issued over the allocation lifetime, GRT
	GasPerAllocation float64        // fixed cost per newly opened allocation, GRT
	MaxAllocations   int            // cardinality cap K
	RewardableIxs    []int          // indices of deployments that can earn rewards
	Mode             domain.OptMode // fast | optimal
}

// Response holds the engine's candidate allocation vectors. Candidates are
// rounding variants grouped later by their nonzero count; the profit matrix
// gives each deployment's expected profit contribution per candidate.
type Response struct {
	Candidates    [][]float64 // k vectors, each of length len(Request.Omega)
	NonzeroCounts []int       // length k
	Profits       [][]float64 // k vectors, each of length len(Request.Omega)
}

// Validate checks the response shapes against the request dimension n.
func (r *Response) Validate(n int) error {
	if len(r.Candidates) == 0 {
		return errors.New("no candidates")
	}
	if len(r.NonzeroCounts) != len(r.Candidates) || len(r.Profits) != len(r.Candidates) {
		return errors.New("candidate, nonzero and profit counts differ")
	}
	for i, c := range r.Candidates {
		if len(c) != n {
			return errors.New("candidate vector length mismatch")
		}
		if len(r.Profits[i]) != n {
			return errors.New("profit vector length mismatch")
		}
	}
	return nil
}

// Engine is the mode A capability: a numeric optimizer over stake vectors.
// Non-convergence must be signalled as ErrDiverged, never as a well-formed
// zero allocation.
type Engine interface {
	Solve(ctx context.Context, req *Request) (*Response, error)
}

// SmoothingRequest is the mode B payload. The engine applies preference
// filtering internally; it receives both the constrained deployment set and
// the unconstrained universe as a baseline.
type SmoothingRequest struct {
	Indexer            *domain.Indexer
	Filtered           []*domain.SubgraphDeployment
	Universe           []*domain.SubgraphDeployment
	Network            *domain.NetworkState
	Constraints        *domain.ConstraintSet
	TauFactor          decimal.Decimal // [0,1]: 0 = greedy short-term, 1 = hold current
	GasPerAllocation   decimal.Decimal // GRT
	AllocationLifetime int             // epochs
	MaxNewAllocations  int
}

// SmoothingEngine is the mode B capability: returns a decided
// deployment -> GRT mapping directly.
type SmoothingEngine interface {
	Optimize(ctx context.Context, req *SmoothingRequest) (map[string]decimal.Decimal, error)
}
