package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/observability"
	"graph-allocopt/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// observe records query latency and errors for one store call.
func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}

const runColumns = `
	run_id, indexer_address, epoch, mode,
	gas_per_allocation, available_stake_grt, pinned_stake_grt,
	num_allocations, profit_grt, created_at
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, run *domain.AllocationRun) (err error) {
	if run == nil || run.RunID == "" || run.IndexerAddress == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("insert_run", start, err) }()

	query := `
		INSERT INTO allocation_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		run.RunID, run.IndexerAddress, run.Epoch, run.Mode,
		run.GasPerAllocation, run.AvailableStakeGRT, run.PinnedStakeGRT,
		run.NumAllocations, run.ProfitGRT, run.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert allocation run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (run *domain.AllocationRun, err error) {
	start := time.Now()
	defer func() { observe("get_run_by_id", start, err) }()

	query := `SELECT ` + runColumns + ` FROM allocation_runs WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	run, err = scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get allocation run by id: %w", err)
	}
	return run, nil
}

// GetByIndexer retrieves all runs for an indexer, oldest first.
func (s *RunStore) GetByIndexer(ctx context.Context, indexerAddress string) (runs []*domain.AllocationRun, err error) {
	start := time.Now()
	defer func() { observe("get_runs_by_indexer", start, err) }()

	query := `
		SELECT ` + runColumns + `
		FROM allocation_runs
		WHERE indexer_address = $1
		ORDER BY created_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, indexerAddress)
	if err != nil {
		return nil, fmt.Errorf("get allocation runs by indexer: %w", err)
	}
	defer rows.Close()

	runs, err = scanRuns(rows)
	return runs, err
}

// GetLatestByIndexer retrieves the most recent run for an indexer.
func (s *RunStore) GetLatestByIndexer(ctx context.Context, indexerAddress string) (run *domain.AllocationRun, err error) {
	start := time.Now()
	defer func() { observe("get_latest_run", start, err) }()

	query := `
		SELECT ` + runColumns + `
		FROM allocation_runs
		WHERE indexer_address = $1
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, indexerAddress)
	run, err = scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest allocation run: %w", err)
	}
	return run, nil
}

// GetAll retrieves all runs, oldest first.
func (s *RunStore) GetAll(ctx context.Context) (runs []*domain.AllocationRun, err error) {
	start := time.Now()
	defer func() { observe("get_all_runs", start, err) }()

	query := `
		SELECT ` + runColumns + `
		FROM allocation_runs
		ORDER BY created_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all allocation runs: %w", err)
	}
	defer rows.Close()

	runs, err = scanRuns(rows)
	return runs, err
}

// scanRun scans a single row into an AllocationRun.
func scanRun(row pgx.Row) (*domain.AllocationRun, error) {
	var r domain.AllocationRun

	err := row.Scan(
		&r.RunID, &r.IndexerAddress, &r.Epoch, &r.Mode,
		&r.GasPerAllocation, &r.AvailableStakeGRT, &r.PinnedStakeGRT,
		&r.NumAllocations, &r.ProfitGRT, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanRuns scans multiple rows into a slice of AllocationRun.
func scanRuns(rows pgx.Rows) ([]*domain.AllocationRun, error) {
	var runs []*domain.AllocationRun

	for rows.Next() {
		var r domain.AllocationRun

		err := rows.Scan(
			&r.RunID, &r.IndexerAddress, &r.Epoch, &r.Mode,
			&r.GasPerAllocation, &r.AvailableStakeGRT, &r.PinnedStakeGRT,
			&r.NumAllocations, &r.ProfitGRT, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan allocation run row: %w", err)
		}

		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocation run rows: %w", err)
	}

	return runs, nil
}
