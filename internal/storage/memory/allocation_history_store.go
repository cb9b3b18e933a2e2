package memory

import (
	"context"
	"sort"
	"sync"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/storage"
)

// AllocationHistoryStore is an in-memory implementation of
// storage.AllocationHistoryStore.
type AllocationHistoryStore struct {
	mu     sync.RWMutex
	points []*domain.AllocationHistoryPoint
	runs   map[string]struct{} // run IDs already recorded
}

// NewAllocationHistoryStore creates a new in-memory history store.
func NewAllocationHistoryStore() *AllocationHistoryStore {
	return &AllocationHistoryStore{
		runs: make(map[string]struct{}),
	}
}

// InsertBulk adds the rows of one run atomically. Fails the entire batch
// if any run in the batch was already recorded.
func (s *AllocationHistoryStore) InsertBulk(_ context.Context, points []*domain.AllocationHistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchRuns := make(map[string]struct{})
	for _, p := range points {
		if p == nil || p.RunID == "" || p.DeploymentID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.runs[p.RunID]; exists {
			return storage.ErrDuplicateKey
		}
		batchRuns[p.RunID] = struct{}{}
	}

	for _, p := range points {
		pointCopy := *p
		s.points = append(s.points, &pointCopy)
	}
	for runID := range batchRuns {
		s.runs[runID] = struct{}{}
	}

	return nil
}

// GetByRunID retrieves all rows of a run, largest amount first.
func (s *AllocationHistoryStore) GetByRunID(_ context.Context, runID string) ([]*domain.AllocationHistoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AllocationHistoryPoint
	for _, p := range s.points {
		if p.RunID == runID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].AmountGRT != result[j].AmountGRT {
			return result[i].AmountGRT > result[j].AmountGRT
		}
		return result[i].DeploymentID < result[j].DeploymentID
	})

	return result, nil
}

// GetByDeployment retrieves a deployment's rows across runs, oldest epoch
// first.
func (s *AllocationHistoryStore) GetByDeployment(_ context.Context, deploymentID string) ([]*domain.AllocationHistoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AllocationHistoryPoint
	for _, p := range s.points {
		if p.DeploymentID == deploymentID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Epoch != result[j].Epoch {
			return result[i].Epoch < result[j].Epoch
		}
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

var _ storage.AllocationHistoryStore = (*AllocationHistoryStore)(nil)
