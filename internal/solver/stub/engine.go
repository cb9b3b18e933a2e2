// Package stub provides deterministic solver stand-ins for tests and dry
// runs. The greedy split below is a baseline, not the production optimizer.
package stub

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"

	"graph-allocopt/internal/eligibility"
	"graph-allocopt/internal/solver"
)

// Engine implements solver.Engine for testing. When Candidates is set the
// scripted response is returned verbatim; otherwise a single greedy
// signal-proportional candidate is computed.
type Engine struct {
	Candidates    [][]float64
	NonzeroCounts []int
	Profits       [][]float64

	// Diverge makes every Solve call fail with solver.ErrDiverged.
	Diverge bool

	Calls       int
	LastRequest *solver.Request
}

// Solve returns the scripted or computed response.
func (e *Engine) Solve(_ context.Context, req *solver.Request) (*solver.Response, error) {
	e.Calls++
	e.LastRequest = req

	if e.Diverge {
		return nil, solver.ErrDiverged
	}

	if e.Candidates != nil {
		return &solver.Response{
			Candidates:    e.Candidates,
			NonzeroCounts: e.NonzeroCounts,
			Profits:       e.Profits,
		}, nil
	}

	return greedy(req), nil
}

// greedy splits the budget across the K highest-signal rewardable
// deployments, proportionally to signal.
func greedy(req *solver.Request) *solver.Response {
	n := len(req.Omega)
	x := make([]float64, n)
	profit := make([]float64, n)

	ixs := append([]int(nil), req.RewardableIxs...)
	sort.SliceStable(ixs, func(a, b int) bool {
		return req.Signal[ixs[a]] > req.Signal[ixs[b]]
	})
	if len(ixs) > req.MaxAllocations {
		ixs = ixs[:req.MaxAllocations]
	}

	var chosenSignal float64
	for _, i := range ixs {
		chosenSignal += req.Signal[i]
	}

	nonzeros := 0
	if chosenSignal > 0 {
		for _, i := range ixs {
			x[i] = req.AvailableStake * req.Signal[i] / chosenSignal
			if x[i] > 0 {
				nonzeros++
			}
		}
	}

	// Reward share model: issuance * signal share * stake share, less gas
	// per newly opened allocation.
	for _, i := range ixs {
		if x[i] == 0 {
			continue
		}
		share := req.Signal[i] / req.TotalSignal
		stakeShare := x[i] / (req.Omega[i] + x[i])
		profit[i] = req.Issuance*share*stakeShare - req.GasPerAllocation
	}

	// Guard: proportional split never exceeds the budget, but keep the
	// arithmetic honest under float accumulation.
	if sum := floats.Sum(x); sum > req.AvailableStake {
		scale := req.AvailableStake / sum
		floats.Scale(scale, x)
	}

	return &solver.Response{
		Candidates:    [][]float64{x},
		NonzeroCounts: []int{nonzeros},
		Profits:       [][]float64{profit},
	}
}

// SmoothingEngine implements solver.SmoothingEngine for testing. It applies
// the same preference filter the orchestrator uses, splits the remaining
// budget proportionally to signal, and blends toward the indexer's current
// allocations by the tau factor.
type SmoothingEngine struct {
	// Diverge makes every Optimize call fail with solver.ErrDiverged.
	Diverge bool

	Calls       int
	LastRequest *solver.SmoothingRequest
}

// Optimize returns a decided deployment -> GRT map, pinned amounts included.
func (e *SmoothingEngine) Optimize(_ context.Context, req *solver.SmoothingRequest) (map[string]decimal.Decimal, error) {
	e.Calls++
	e.LastRequest = req

	if e.Diverge {
		return nil, solver.ErrDiverged
	}

	fr, err := eligibility.Filter(req.Filtered, req.Indexer, req.Constraints, decimal.Zero)
	if err != nil {
		return nil, err
	}

	totalSignal := decimal.Zero
	for _, sg := range fr.Eligible {
		totalSignal = totalSignal.Add(sg.SignalledTokens)
	}

	out := make(map[string]decimal.Decimal, len(fr.Eligible)+len(fr.PinnedAmounts))
	for id, amount := range fr.PinnedAmounts {
		out[id] = amount
	}
	if totalSignal.IsZero() {
		return out, nil
	}

	one := decimal.NewFromInt(1)
	for _, sg := range fr.Eligible {
		greedy := fr.AvailableStake.Mul(sg.SignalledTokens).Div(totalSignal)
		current := req.Indexer.AllocationOn(sg.ID)
		blended := req.TauFactor.Mul(current).Add(one.Sub(req.TauFactor).Mul(greedy))
		if blended.IsPositive() {
			out[sg.ID] = blended
		}
	}

	return out, nil
}

var (
	_ solver.Engine          = (*Engine)(nil)
	_ solver.SmoothingEngine = (*SmoothingEngine)(nil)
)
