// Package memory provides in-memory store implementations for tests and
// dry runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AllocationRun // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.AllocationRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, run *domain.AllocationRun) error {
	if run == nil || run.RunID == "" || run.IndexerAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *run
	s.data[run.RunID] = &runCopy
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.AllocationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	runCopy := *run
	return &runCopy, nil
}

// GetByIndexer retrieves all runs for an indexer, oldest first.
func (s *RunStore) GetByIndexer(_ context.Context, indexerAddress string) ([]*domain.AllocationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AllocationRun
	for _, run := range s.data {
		if run.IndexerAddress == indexerAddress {
			runCopy := *run
			result = append(result, &runCopy)
		}
	}
	sortRuns(result)

	return result, nil
}

// GetLatestByIndexer retrieves the most recent run for an indexer.
func (s *RunStore) GetLatestByIndexer(ctx context.Context, indexerAddress string) (*domain.AllocationRun, error) {
	runs, err := s.GetByIndexer(ctx, indexerAddress)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storage.ErrNotFound
	}
	return runs[len(runs)-1], nil
}

// GetAll retrieves all runs, oldest first.
func (s *RunStore) GetAll(_ context.Context) ([]*domain.AllocationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AllocationRun
	for _, run := range s.data {
		runCopy := *run
		result = append(result, &runCopy)
	}
	sortRuns(result)

	return result, nil
}

// sortRuns orders by creation time, run_id as tiebreaker.
func sortRuns(runs []*domain.AllocationRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt != runs[j].CreatedAt {
			return runs[i].CreatedAt < runs[j].CreatedAt
		}
		return runs[i].RunID < runs[j].RunID
	})
}

var _ storage.RunStore = (*RunStore)(nil)
