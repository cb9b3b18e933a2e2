package allocation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"graph-allocopt/internal/deployment"
	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/grt"
	"graph-allocopt/internal/network"
	"graph-allocopt/internal/solver"
)

// Params is the public entry's full input. Exactly one of Engine or
// SmoothingEngine must be set; TauFactor selects the smoothing flow.
type Params struct {
	IndexerAddress string
	Provider       network.DataProvider

	Engine          solver.Engine
	SmoothingEngine solver.SmoothingEngine

	// GasPerAllocation in GRT, AllocationLifetime in epochs.
	GasPerAllocation   decimal.Decimal
	AllocationLifetime int
	MaxNewAllocations  int

	// Mode is the vector-engine effort level (fast | optimal).
	Mode domain.OptMode
	// TauFactor, when non-nil, selects the smoothing flow.
	TauFactor *decimal.Decimal

	MinSignal          decimal.Decimal
	NumReportedOptions int

	// Preference lists; deployment IDs in either hex or IPFS form.
	Whitelist  []string
	Blacklist  []string
	Pinnedlist []string
	Frozenlist []string

	Logger zerolog.Logger
}

// Allocate runs one full optimization and returns the validated plan as
// deployment ID -> wei. A failed run returns no partial plan.
func Allocate(ctx context.Context, p Params) (domain.AllocationPlan, error) {
	strategies, err := Optimize(ctx, p)
	if err != nil {
		return nil, err
	}

	if p.NumReportedOptions <= 1 && len(strategies) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one strategy, got %d", solver.ErrMalformedResponse, len(strategies))
	}

	return PlanFromStrategy(&strategies[0]), nil
}

// Optimize runs one full optimization and returns the selected strategies
// in GRT. Allocate wraps it; callers that persist or report runs use it
// directly.
func Optimize(ctx context.Context, p Params) ([]domain.Strategy, error) {
	constraints, err := normalizeConstraints(p)
	if err != nil {
		return nil, err
	}

	data, err := p.Provider.Query(ctx, p.IndexerAddress, constraints)
	if err != nil {
		return nil, err
	}

	config := Config{
		GasPerAllocation:   p.GasPerAllocation,
		AllocationLifetime: p.AllocationLifetime,
		MaxNewAllocations:  p.MaxNewAllocations,
		Mode:               p.Mode,
		MinSignal:          p.MinSignal,
		NumReportedOptions: p.NumReportedOptions,
	}

	in := &Input{Data: data, Constraints: constraints}

	var opt Optimizer
	if p.TauFactor != nil {
		// Smoothing flow needs the unconstrained universe as baseline.
		universe, err := p.Provider.Query(ctx, p.IndexerAddress, nil)
		if err != nil {
			return nil, err
		}
		in.Universe = universe.Subgraphs

		config.TauFactor = *p.TauFactor
		opt = NewSmoothingOptimizer(p.SmoothingEngine, config, p.Logger)
	} else {
		opt = NewVectorOptimizer(p.Engine, config, p.Logger)
	}

	return opt.Optimize(ctx, in)
}

// PlanFromStrategy converts a strategy's GRT amounts to wei.
func PlanFromStrategy(s *domain.Strategy) domain.AllocationPlan {
	plan := make(domain.AllocationPlan, len(s.Allocations))
	for _, item := range s.Allocations {
		plan[item.DeploymentID] = grt.ToWei(item.Amount, grt.RoundHalfEven)
	}
	return plan
}

// normalizeConstraints converts the four lists to canonical IPFS IDs.
func normalizeConstraints(p Params) (*domain.ConstraintSet, error) {
	cs := &domain.ConstraintSet{}
	for _, pair := range []struct {
		name string
		in   []string
		out  *[]string
	}{
		{"whitelist", p.Whitelist, &cs.Whitelist},
		{"blacklist", p.Blacklist, &cs.Blacklist},
		{"pinnedlist", p.Pinnedlist, &cs.Pinnedlist},
		{"frozenlist", p.Frozenlist, &cs.Frozenlist},
	} {
		for _, id := range pair.in {
			normalized, err := deployment.ToIPFS(id)
			if err != nil {
				return nil, fmt.Errorf("%s entry %q: %w", pair.name, id, err)
			}
			*pair.out = append(*pair.out, normalized)
		}
	}
	return cs, nil
}
