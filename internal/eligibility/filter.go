// Package eligibility derives the set of deployments the optimizer may
// allocate to from the full candidate set and a constraint set.
package eligibility

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"graph-allocopt/internal/domain"
)

// ErrInsufficientStake is returned when pinned plus frozen stake consumes
// the indexer's entire stake, leaving the optimizer no budget to work with.
var ErrInsufficientStake = errors.New("no stake available to allocate with the configured frozenlist and pinnedlist")

// Result is the output of constraint filtering.
type Result struct {
	// Eligible holds the optimizer's decision variables, in input order.
	Eligible []*domain.SubgraphDeployment

	// PinnedAmounts maps pinned deployment IDs to their preserved
	// allocation. Re-added to the final plan unchanged.
	PinnedAmounts map[string]decimal.Decimal

	PinnedStake    decimal.Decimal // sum of PinnedAmounts
	FrozenStake    decimal.Decimal // indexer stake locked on frozen deployments
	AvailableStake decimal.Decimal // stake - frozen - pinned; always positive
}

// Filter applies the constraint set to the candidate deployments.
//
// A non-empty whitelist restricts eligibility to its members; frozen
// deployments are excluded entirely along with the stake on them;
// blacklisted deployments receive no new allocation; pinned deployments are
// removed from the decision set with their current allocation preserved.
// minSignal drops deployments whose signal is below the floor. A deployment
// on both the pinnedlist and the frozenlist is treated as frozen.
//
// Returns ErrInsufficientStake if the remaining budget is not positive; the
// optimizer has no valid problem in that case and must not be invoked.
func Filter(
	subgraphs []*domain.SubgraphDeployment,
	indexer *domain.Indexer,
	constraints *domain.ConstraintSet,
	minSignal decimal.Decimal,
) (*Result, error) {
	res := &Result{
		PinnedAmounts:  make(map[string]decimal.Decimal),
		PinnedStake:    decimal.Zero,
		FrozenStake:    decimal.Zero,
		AvailableStake: decimal.Zero,
	}

	for _, sg := range subgraphs {
		if constraints.Frozen(sg.ID) {
			res.FrozenStake = res.FrozenStake.Add(indexer.AllocationOn(sg.ID))
			continue
		}
		if constraints.Pinned(sg.ID) {
			amount := indexer.AllocationOn(sg.ID)
			res.PinnedAmounts[sg.ID] = amount
			res.PinnedStake = res.PinnedStake.Add(amount)
			continue
		}
		if !constraints.Whitelisted(sg.ID) || constraints.Blacklisted(sg.ID) {
			continue
		}
		if sg.SignalledTokens.LessThan(minSignal) {
			continue
		}
		res.Eligible = append(res.Eligible, sg)
	}

	res.AvailableStake = indexer.StakedTokens.Sub(res.FrozenStake).Sub(res.PinnedStake)
	if !res.AvailableStake.IsPositive() {
		return nil, fmt.Errorf("%w: stake=%s frozen=%s pinned=%s",
			ErrInsufficientStake, indexer.StakedTokens, res.FrozenStake, res.PinnedStake)
	}

	return res, nil
}
