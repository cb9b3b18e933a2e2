// Package stub provides an in-memory DataProvider for tests.
package stub

import (
	"context"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/network"
)

// DataProvider implements network.DataProvider from fixed snapshots.
type DataProvider struct {
	// Data is returned for queries with no whitelist.
	Data *network.Data
	// ConstrainedData, when set, is returned for queries carrying a
	// whitelist. Defaults to Data.
	ConstrainedData *network.Data
	// Err, when set, is returned for every query.
	Err error

	Calls int
}

// Query returns the configured snapshot.
func (p *DataProvider) Query(_ context.Context, _ string, constraints *domain.ConstraintSet) (*network.Data, error) {
	p.Calls++

	if p.Err != nil {
		return nil, p.Err
	}

	if constraints != nil && len(constraints.Whitelist) > 0 && p.ConstrainedData != nil {
		return p.ConstrainedData, nil
	}
	if p.Data == nil {
		return nil, network.ErrEmptyNetworkData
	}
	return p.Data, nil
}

var _ network.DataProvider = (*DataProvider)(nil)
