package reporting

import (
	"context"
	"strconv"
	"time"

	"graph-allocopt/internal/storage"
)

// Generator produces reports from stored runs.
type Generator struct {
	runStore     storage.RunStore
	historyStore storage.AllocationHistoryStore
	now          func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runStore storage.RunStore, historyStore storage.AllocationHistoryStore) *Generator {
	return &Generator{
		runStore:     runStore,
		historyStore: historyStore,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate rebuilds a report for a stored run. History only keeps the
// chosen strategy, so the report carries exactly one.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	points, err := g.historyStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	strategy := StrategyReport{
		NumAllocations: run.NumAllocations,
		Profit:         run.ProfitGRT,
		Allocations:    make([]AllocationEntry, 0, len(points)),
	}
	for _, p := range points {
		strategy.Allocations = append(strategy.Allocations, AllocationEntry{
			DeploymentID:     p.DeploymentID,
			AllocationAmount: strconv.FormatFloat(p.AmountGRT, 'f', -1, 64),
		})
	}

	return &Report{
		GeneratedAt:    g.now(),
		RunID:          run.RunID,
		IndexerAddress: run.IndexerAddress,
		Epoch:          run.Epoch,
		Mode:           run.Mode,
		Strategies:     []StrategyReport{strategy},
	}, nil
}
