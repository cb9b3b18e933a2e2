// Package reporting renders optimization results in the action-queue
// JSON shape plus CSV and Markdown for humans.
package reporting

import (
	"encoding/json"
	"time"

	"graph-allocopt/internal/domain"
)

// Report is one run's renderable result.
type Report struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	RunID          string           `json:"run_id,omitempty"`
	IndexerAddress string           `json:"indexer_address"`
	Epoch          int64            `json:"epoch"`
	Mode           string           `json:"mode"`
	Strategies     []StrategyReport `json:"strategies"`
}

// StrategyReport is one candidate strategy in the report.
type StrategyReport struct {
	NumAllocations int               `json:"num_allocations"`
	Profit         string            `json:"profit"`
	Allocations    []AllocationEntry `json:"allocations"`
}

// AllocationEntry is one deployment's line in a strategy. Field names
// follow the action-queue wire format consumed downstream.
type AllocationEntry struct {
	DeploymentID     string `json:"deploymentID"`
	AllocationAmount string `json:"allocationAmount"`
}

// StrategiesFromDomain converts selected strategies to report rows.
func StrategiesFromDomain(strategies []domain.Strategy) []StrategyReport {
	out := make([]StrategyReport, 0, len(strategies))
	for _, s := range strategies {
		sr := StrategyReport{
			NumAllocations: s.NumAllocations,
			Profit:         s.Profit.String(),
			Allocations:    make([]AllocationEntry, 0, len(s.Allocations)),
		}
		for _, item := range s.Allocations {
			sr.Allocations = append(sr.Allocations, AllocationEntry{
				DeploymentID:     item.DeploymentID,
				AllocationAmount: item.Amount.String(),
			})
		}
		out = append(out, sr)
	}
	return out
}

// actionQueuePayload is the envelope the action queue consumes. It
// carries only the strategies; run metadata stays out of the wire shape.
type actionQueuePayload struct {
	Strategies []StrategyReport `json:"strategies"`
}

// RenderActionQueueJSON renders strategies as the action-queue payload.
func RenderActionQueueJSON(strategies []StrategyReport) (string, error) {
	data, err := json.MarshalIndent(actionQueuePayload{Strategies: strategies}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
