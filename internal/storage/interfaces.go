// Package storage defines the persistence interfaces for optimization
// runs. Stores are injected; implementations live in the memory, postgres
// and clickhouse subpackages.
package storage

import (
	"context"

	"graph-allocopt/internal/domain"
)

// RunStore persists completed optimization runs. Append-only: a run is
// recorded once and never updated.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.AllocationRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.AllocationRun, error)

	// GetByIndexer retrieves all runs for an indexer, oldest first.
	GetByIndexer(ctx context.Context, indexerAddress string) ([]*domain.AllocationRun, error)

	// GetLatestByIndexer retrieves the most recent run for an indexer.
	// Returns ErrNotFound if the indexer has no runs.
	GetLatestByIndexer(ctx context.Context, indexerAddress string) (*domain.AllocationRun, error)

	// GetAll retrieves all runs, oldest first.
	GetAll(ctx context.Context) ([]*domain.AllocationRun, error)
}

// AllocationHistoryStore persists per-(run, deployment) analytic rows
// for history queries over past allocations.
type AllocationHistoryStore interface {
	// InsertBulk adds the rows of one run atomically. Fails the entire
	// batch if the run was already recorded.
	InsertBulk(ctx context.Context, points []*domain.AllocationHistoryPoint) error

	// GetByRunID retrieves all rows of a run, largest amount first.
	GetByRunID(ctx context.Context, runID string) ([]*domain.AllocationHistoryPoint, error)

	// GetByDeployment retrieves a deployment's rows across runs, oldest
	// epoch first.
	GetByDeployment(ctx context.Context, deploymentID string) ([]*domain.AllocationHistoryPoint, error)
}
