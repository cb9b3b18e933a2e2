package domain

import "github.com/shopspring/decimal"

// Allocation is an indexer's currently open allocation on a deployment.
type Allocation struct {
	DeploymentID    string          // IPFS deployment hash
	AllocatedTokens decimal.Decimal // GRT
	CreatedAtEpoch  int64
}

// Indexer represents the network participant whose stake is being allocated.
type Indexer struct {
	Address      string          // 20-byte hex address, lowercase
	StakedTokens decimal.Decimal // total self + delegated stake available for allocation, GRT
	Allocations  []Allocation    // currently open allocations
}

// AllocationOn returns the indexer's open allocation amount on a deployment,
// zero if none.
func (i *Indexer) AllocationOn(deploymentID string) decimal.Decimal {
	for _, a := range i.Allocations {
		if a.DeploymentID == deploymentID {
			return a.AllocatedTokens
		}
	}
	return decimal.Zero
}
