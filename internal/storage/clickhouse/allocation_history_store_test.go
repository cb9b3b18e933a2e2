package clickhouse

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/observability"
	"graph-allocopt/internal/storage"
)

func testPoints(runID string) []*domain.AllocationHistoryPoint {
	return []*domain.AllocationHistoryPoint{
		{RunID: runID, DeploymentID: "QmAAA", Epoch: 712, AmountGRT: 625, ProfitGRT: 5.5, CreatedAt: 1000},
		{RunID: runID, DeploymentID: "QmBBB", Epoch: 712, AmountGRT: 312.5, ProfitGRT: 2.1, CreatedAt: 1000},
		{RunID: runID, DeploymentID: "QmCCC", Epoch: 712, AmountGRT: 62.5, ProfitGRT: 0.3, CreatedAt: 1000},
	}
}

func TestAllocationHistoryStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllocationHistoryStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, testPoints("run1")))

	points, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, points, 3)

	// Largest amount first
	assert.Equal(t, "QmAAA", points[0].DeploymentID)
	assert.Equal(t, 625.0, points[0].AmountGRT)
	assert.Equal(t, "QmCCC", points[2].DeploymentID)

	// Store calls report their latency
	assert.Greater(t, testutil.CollectAndCount(observability.DefaultMetrics.DBQueryDuration), 0)
}

func TestAllocationHistoryStore_DuplicateRunRejected(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllocationHistoryStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, testPoints("run1")))

	err := store.InsertBulk(ctx, testPoints("run1"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAllocationHistoryStore_GetByDeployment(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllocationHistoryStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.AllocationHistoryPoint{
		{RunID: "run2", DeploymentID: "QmAAA", Epoch: 713, AmountGRT: 700, CreatedAt: 2000},
	}))
	require.NoError(t, store.InsertBulk(ctx, []*domain.AllocationHistoryPoint{
		{RunID: "run1", DeploymentID: "QmAAA", Epoch: 712, AmountGRT: 625, CreatedAt: 1000},
		{RunID: "run1", DeploymentID: "QmBBB", Epoch: 712, AmountGRT: 312.5, CreatedAt: 1000},
	}))

	points, err := store.GetByDeployment(ctx, "QmAAA")
	require.NoError(t, err)
	require.Len(t, points, 2)

	// Oldest epoch first
	assert.Equal(t, int64(712), points[0].Epoch)
	assert.Equal(t, int64(713), points[1].Epoch)
}

func TestAllocationHistoryStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllocationHistoryStore(conn)

	err := store.InsertBulk(context.Background(), []*domain.AllocationHistoryPoint{
		{RunID: "", DeploymentID: "QmAAA"},
	})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}
