package domain

import "github.com/shopspring/decimal"

// NetworkState holds network-wide parameters needed to project rewards.
type NetworkState struct {
	TotalTokensSignalled decimal.Decimal // total curation signal across all deployments, GRT
	TotalSupply          decimal.Decimal // total GRT supply
	IssuancePerBlock     decimal.Decimal // issuance growth factor per block, e.g. 1.0000000122
	BlocksPerEpoch       int64
	CurrentEpoch         int64
}
