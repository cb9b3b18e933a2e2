package domain

// AllocationRun records one completed optimization run.
// Corresponds to allocation_runs table in PostgreSQL.
type AllocationRun struct {
	RunID             string // PRIMARY KEY, deterministic hash
	IndexerAddress    string
	Epoch             int64
	Mode              string // "fast" | "optimal" | "smoothing"
	GasPerAllocation  string // GRT, decimal string
	AvailableStakeGRT string // sigma at solve time, decimal string
	PinnedStakeGRT    string // decimal string
	NumAllocations    int    // nonzero count of the chosen strategy
	ProfitGRT         string // decimal string
	CreatedAt         int64  // Unix timestamp in milliseconds
}

// AllocationHistoryPoint is one (run, deployment) analytic row.
// Corresponds to allocation_history table in ClickHouse.
type AllocationHistoryPoint struct {
	RunID        string
	DeploymentID string
	Epoch        int64
	AmountGRT    float64
	ProfitGRT    float64
	CreatedAt    int64 // Unix timestamp in milliseconds
}
