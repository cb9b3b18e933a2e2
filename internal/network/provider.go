// Package network retrieves indexer, deployment and network-wide state from
// a Graph Network subgraph endpoint.
package network

import (
	"context"
	"errors"

	"graph-allocopt/internal/domain"
)

// ErrEmptyNetworkData is returned when the endpoint answers with no usable
// indexer, deployment or network records.
var ErrEmptyNetworkData = errors.New("empty network data")

// Data is one consistent snapshot of the records the orchestrator needs.
type Data struct {
	Indexer   *domain.Indexer
	Subgraphs []*domain.SubgraphDeployment
	Network   *domain.NetworkState
}

// DataProvider supplies network state for one indexer under a constraint
// set. A nil or empty constraint set returns the unconstrained universe;
// mode B orchestration queries both views in one run.
type DataProvider interface {
	Query(ctx context.Context, indexerAddress string, constraints *domain.ConstraintSet) (*Data, error)
}
