package domain

import "github.com/shopspring/decimal"

// SubgraphDeployment represents one allocation target on the network.
// Identified by its IPFS content hash (base58 CIDv0, "Qm...").
type SubgraphDeployment struct {
	ID               string          // IPFS deployment hash
	SignalledTokens  decimal.Decimal // curation signal, GRT
	StakedTokens     decimal.Decimal // total allocated stake across all indexers, GRT
	DeniedAt         int64           // epoch the deployment was denied rewards, 0 = not denied
}

// Rewardable reports whether the deployment can earn indexing rewards.
func (s *SubgraphDeployment) Rewardable() bool {
	return s.DeniedAt == 0 && s.SignalledTokens.IsPositive()
}
