package clickhouse

import (
	"context"
	"fmt"
	"time"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/observability"
	"graph-allocopt/internal/storage"
)

// AllocationHistoryStore implements storage.AllocationHistoryStore using
// ClickHouse.
type AllocationHistoryStore struct {
	conn *Conn
}

// NewAllocationHistoryStore creates a new AllocationHistoryStore.
func NewAllocationHistoryStore(conn *Conn) *AllocationHistoryStore {
	return &AllocationHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AllocationHistoryStore = (*AllocationHistoryStore)(nil)

// observe records query latency and errors for one store call.
func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}

// InsertBulk adds the rows of one run. MergeTree does not enforce
// uniqueness, so recorded runs are checked explicitly before insert.
func (s *AllocationHistoryStore) InsertBulk(ctx context.Context, points []*domain.AllocationHistoryPoint) (err error) {
	if len(points) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	for _, p := range points {
		if p == nil || p.RunID == "" || p.DeploymentID == "" {
			return storage.ErrInvalidInput
		}
		seen[p.RunID] = struct{}{}
	}

	start := time.Now()
	defer func() { observe("insert_history", start, err) }()

	for runID := range seen {
		exists, err := s.runExists(ctx, runID)
		if err != nil {
			return fmt.Errorf("check run exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO allocation_history (
			run_id, deployment_id, epoch, amount_grt, profit_grt, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.RunID, p.DeploymentID, p.Epoch, p.AmountGRT, p.ProfitGRT, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves all rows of a run, largest amount first.
func (s *AllocationHistoryStore) GetByRunID(ctx context.Context, runID string) (points []*domain.AllocationHistoryPoint, err error) {
	start := time.Now()
	defer func() { observe("get_history_by_run", start, err) }()

	query := `
		SELECT run_id, deployment_id, epoch, amount_grt, profit_grt, created_at
		FROM allocation_history
		WHERE run_id = ?
		ORDER BY amount_grt DESC, deployment_id ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	points, err = scanHistoryPoints(rows)
	return points, err
}

// GetByDeployment retrieves a deployment's rows across runs, oldest epoch
// first.
func (s *AllocationHistoryStore) GetByDeployment(ctx context.Context, deploymentID string) (points []*domain.AllocationHistoryPoint, err error) {
	start := time.Now()
	defer func() { observe("get_history_by_deployment", start, err) }()

	query := `
		SELECT run_id, deployment_id, epoch, amount_grt, profit_grt, created_at
		FROM allocation_history
		WHERE deployment_id = ?
		ORDER BY epoch ASC, run_id ASC
	`

	rows, err := s.conn.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("query by deployment: %w", err)
	}
	defer rows.Close()

	points, err = scanHistoryPoints(rows)
	return points, err
}

// runExists checks if a run was already recorded.
func (s *AllocationHistoryStore) runExists(ctx context.Context, runID string) (bool, error) {
	query := `SELECT count(*) FROM allocation_history WHERE run_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, runID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanHistoryPoints scans multiple rows into a slice.
func scanHistoryPoints(rows chRows) ([]*domain.AllocationHistoryPoint, error) {
	var points []*domain.AllocationHistoryPoint

	for rows.Next() {
		var p domain.AllocationHistoryPoint
		err := rows.Scan(
			&p.RunID, &p.DeploymentID, &p.Epoch, &p.AmountGRT, &p.ProfitGRT, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return points, nil
}
