// Package allocation orchestrates one optimization run: it builds the
// solver request from network state, invokes the engine, re-adds pinned
// stake, enforces the budget ceiling and selects the reported strategies.
package allocation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/eligibility"
	"graph-allocopt/internal/network"
	"graph-allocopt/internal/solver"
)

// fudgeFactor keeps zero-stake deployments away from the division
// singularity in the engine's reward model.
const fudgeFactor = 1e-18

// Config holds the run parameters shared by both optimizer implementations.
type Config struct {
	// GasPerAllocation is the fixed cost per newly opened allocation, in
	// GRT (not wei).
	GasPerAllocation decimal.Decimal
	// AllocationLifetime is how many epochs the allocations stay open.
	AllocationLifetime int
	// MaxNewAllocations caps the number of new allocations.
	MaxNewAllocations int
	// Mode selects the engine's effort level (fast | optimal).
	Mode domain.OptMode
	// TauFactor in [0,1] is the smoothing parameter: 0 is greedy
	// short-term reward, 1 holds the current allocations.
	TauFactor decimal.Decimal
	// MinSignal is the signal floor below which deployments are not
	// eligible for new allocation.
	MinSignal decimal.Decimal
	// NumReportedOptions is how many strategies to report (default 1).
	NumReportedOptions int
}

// ReportedOptions returns NumReportedOptions with the default applied.
func (c Config) ReportedOptions() int {
	if c.NumReportedOptions <= 0 {
		return 1
	}
	return c.NumReportedOptions
}

// Input is the network snapshot an optimizer decides over.
type Input struct {
	// Data is the constrained view: indexer, deployments, network state.
	Data *network.Data
	// Universe is the unconstrained deployment baseline. Only the
	// smoothing optimizer uses it.
	Universe []*domain.SubgraphDeployment
	// Constraints are the four preference lists, IDs normalized.
	Constraints *domain.ConstraintSet
}

// Optimizer turns a network snapshot into candidate strategies. The two
// implementations are alternate ways of honoring the same contract: the
// vector optimizer delegates a numeric problem and selects strategies
// itself; the smoothing optimizer delegates preference handling too and
// passes the single decided result through.
type Optimizer interface {
	Optimize(ctx context.Context, in *Input) ([]domain.Strategy, error)
}

// VectorOptimizer drives a solver.Engine over per-deployment stake and
// signal vectors.
type VectorOptimizer struct {
	engine solver.Engine
	config Config
	log    zerolog.Logger
}

// NewVectorOptimizer creates a vector-mode optimizer.
func NewVectorOptimizer(engine solver.Engine, config Config, log zerolog.Logger) *VectorOptimizer {
	return &VectorOptimizer{engine: engine, config: config, log: log}
}

var _ Optimizer = (*VectorOptimizer)(nil)

// Optimize runs the full vector flow. Engine divergence propagates
// undecorated; the caller retries the whole run.
func (o *VectorOptimizer) Optimize(ctx context.Context, in *Input) ([]domain.Strategy, error) {
	fr, err := eligibility.Filter(in.Data.Subgraphs, in.Data.Indexer, in.Constraints, o.config.MinSignal)
	if err != nil {
		return nil, err
	}

	n := len(fr.Eligible)
	omega := make([]float64, n)
	signal := make([]float64, n)
	var rixs []int
	for i, sg := range fr.Eligible {
		omega[i] = sg.StakedTokens.InexactFloat64() + fudgeFactor
		signal[i] = sg.SignalledTokens.InexactFloat64()
		if sg.Rewardable() {
			rixs = append(rixs, i)
		}
	}

	k := o.config.MaxNewAllocations
	if len(rixs) < k {
		k = len(rixs)
	}

	req := &solver.Request{
		Omega:            omega,
		Signal:           signal,
		TotalSignal:      in.Data.Network.TotalTokensSignalled.InexactFloat64(),
		AvailableStake:   fr.AvailableStake.InexactFloat64(),
		Issuance:         issuanceOverLifetime(in.Data.Network, o.config.AllocationLifetime),
		GasPerAllocation: o.config.GasPerAllocation.InexactFloat64(),
		MaxAllocations:   k,
		RewardableIxs:    rixs,
		Mode:             o.config.Mode,
	}

	o.log.Debug().
		Int("eligible", n).
		Int("rewardable", len(rixs)).
		Int("max_allocations", k).
		Str("available_stake", fr.AvailableStake.String()).
		Str("mode", string(o.config.Mode)).
		Msg("invoking optimizer")

	resp, err := o.engine.Solve(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Validate(n); err != nil {
		return nil, fmt.Errorf("%w: %v", solver.ErrMalformedResponse, err)
	}

	pinnedTotal := fr.PinnedStake.InexactFloat64()
	ceiling := fr.AvailableStake.InexactFloat64() + pinnedTotal
	if err := validateVectorBudget(resp.Candidates, pinnedTotal, ceiling); err != nil {
		return nil, err
	}

	ranked := rankCandidates(resp, o.config.ReportedOptions())

	strategies := make([]domain.Strategy, 0, len(ranked))
	for _, rc := range ranked {
		strategies = append(strategies, buildStrategy(rc, resp, fr))
	}

	o.log.Debug().
		Int("candidates", len(resp.Candidates)).
		Int("reported", len(strategies)).
		Msg("strategies selected")

	return strategies, nil
}

// buildStrategy converts one ranked candidate into a strategy, pinned
// amounts re-added unchanged.
func buildStrategy(rc rankedCandidate, resp *solver.Response, fr *eligibility.Result) domain.Strategy {
	xs := resp.Candidates[rc.Index]
	profits := resp.Profits[rc.Index]

	var items []domain.AllocationItem
	for i, sg := range fr.Eligible {
		if xs[i] <= 0 || math.IsNaN(xs[i]) {
			continue
		}
		p := profits[i]
		if math.IsNaN(p) {
			p = 0
		}
		items = append(items, domain.AllocationItem{
			DeploymentID: sg.ID,
			Amount:       decimal.NewFromFloat(xs[i]),
			Profit:       decimal.NewFromFloat(p),
		})
	}
	for id, amount := range fr.PinnedAmounts {
		items = append(items, domain.AllocationItem{
			DeploymentID: id,
			Amount:       amount,
			Profit:       decimal.Zero,
		})
	}
	sort.Slice(items, func(a, b int) bool {
		if !items[a].Amount.Equal(items[b].Amount) {
			return items[a].Amount.GreaterThan(items[b].Amount)
		}
		return items[a].DeploymentID < items[b].DeploymentID
	})

	return domain.Strategy{
		NumAllocations: len(items),
		Profit:         decimal.NewFromFloat(rc.Profit),
		Allocations:    items,
	}
}

// issuanceOverLifetime computes new token issuance over the allocation
// lifetime: supply * (rate^(blocksPerEpoch*lifetime) - 1), where rate is
// the per-block issuance growth factor.
func issuanceOverLifetime(n *domain.NetworkState, lifetimeEpochs int) float64 {
	rate := n.IssuancePerBlock.InexactFloat64()
	blocks := float64(n.BlocksPerEpoch) * float64(lifetimeEpochs)
	return n.TotalSupply.InexactFloat64() * (math.Pow(rate, blocks) - 1)
}

// SmoothingOptimizer drives a solver.SmoothingEngine, which applies the
// preference lists itself and returns a single decided allocation.
type SmoothingOptimizer struct {
	engine solver.SmoothingEngine
	config Config
	log    zerolog.Logger
}

// NewSmoothingOptimizer creates a smoothing-mode optimizer.
func NewSmoothingOptimizer(engine solver.SmoothingEngine, config Config, log zerolog.Logger) *SmoothingOptimizer {
	return &SmoothingOptimizer{engine: engine, config: config, log: log}
}

var _ Optimizer = (*SmoothingOptimizer)(nil)

// Optimize runs the smoothing flow. The stake check runs before the
// engine call so an unsolvable constraint set never reaches the engine.
func (o *SmoothingOptimizer) Optimize(ctx context.Context, in *Input) ([]domain.Strategy, error) {
	fr, err := eligibility.Filter(in.Data.Subgraphs, in.Data.Indexer, in.Constraints, o.config.MinSignal)
	if err != nil {
		return nil, err
	}

	req := &solver.SmoothingRequest{
		Indexer:            in.Data.Indexer,
		Filtered:           in.Data.Subgraphs,
		Universe:           in.Universe,
		Network:            in.Data.Network,
		Constraints:        in.Constraints,
		TauFactor:          o.config.TauFactor,
		GasPerAllocation:   o.config.GasPerAllocation,
		AllocationLifetime: o.config.AllocationLifetime,
		MaxNewAllocations:  o.config.MaxNewAllocations,
	}

	o.log.Debug().
		Str("tau", o.config.TauFactor.String()).
		Str("available_stake", fr.AvailableStake.String()).
		Msg("invoking smoothing optimizer")

	amounts, err := o.engine.Optimize(ctx, req)
	if err != nil {
		return nil, err
	}

	for id := range amounts {
		if in.Constraints.Frozen(id) {
			return nil, fmt.Errorf("%w: frozen deployment %s in result", solver.ErrMalformedResponse, id)
		}
	}

	ceiling := fr.AvailableStake.Add(fr.PinnedStake)
	if err := validateAmountBudget(amounts, ceiling); err != nil {
		return nil, err
	}

	// The engine returns one decided allocation; selection is a
	// pass-through.
	items := make([]domain.AllocationItem, 0, len(amounts))
	for id, amount := range amounts {
		if !amount.IsPositive() {
			continue
		}
		items = append(items, domain.AllocationItem{
			DeploymentID: id,
			Amount:       amount,
			Profit:       decimal.Zero,
		})
	}
	sort.Slice(items, func(a, b int) bool {
		if !items[a].Amount.Equal(items[b].Amount) {
			return items[a].Amount.GreaterThan(items[b].Amount)
		}
		return items[a].DeploymentID < items[b].DeploymentID
	})

	return []domain.Strategy{{
		NumAllocations: len(items),
		Profit:         decimal.Zero,
		Allocations:    items,
	}}, nil
}
