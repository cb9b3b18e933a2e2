package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AllocationItem is one deployment's share in a candidate strategy.
type AllocationItem struct {
	DeploymentID string
	Amount       decimal.Decimal // GRT
	Profit       decimal.Decimal // expected profit contribution, GRT
}

// Strategy is one candidate allocation plan returned by the optimizer,
// after pinned amounts have been re-added.
type Strategy struct {
	NumAllocations int             // count of nonzero entries
	Profit         decimal.Decimal // total expected profit, GRT
	Allocations    []AllocationItem
}

// AllocationPlan is the caller-facing result: deployment hash to wei amount.
type AllocationPlan map[string]*big.Int

// OptMode selects the external engine's optimization strategy.
//
// ModeFast trades solution quality for speed and can settle in local optima;
// it is not recommended for production use. ModeOptimal is the recommended
// mode but may occasionally fail to converge, in which case the caller
// should retry the whole orchestration.
type OptMode string

const (
	ModeFast    OptMode = "fast"
	ModeOptimal OptMode = "optimal"
)
