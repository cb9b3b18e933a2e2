package allocation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// BudgetExceededError signals that a candidate allocation exceeds the
// stake ceiling. This is a hard invariant violation from the engine's
// numeric tolerance; the plan is rejected, never clipped.
type BudgetExceededError struct {
	// Excess is the amount over the ceiling, in GRT.
	Excess decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("tried to allocate more stake than is available by %s GRT", e.Excess)
}

// validateVectorBudget checks every candidate vector, pinned stake
// re-added, against the ceiling. NaN sums are skipped: a candidate the
// engine marked unusable is not a budget violation.
func validateVectorBudget(candidates [][]float64, pinnedTotal, ceiling float64) error {
	for _, xs := range candidates {
		total := floats.Sum(xs) + pinnedTotal
		if math.IsNaN(total) {
			continue
		}
		if total > ceiling {
			return &BudgetExceededError{Excess: decimal.NewFromFloat(total - ceiling)}
		}
	}
	return nil
}

// validateAmountBudget checks a decided deployment -> GRT mapping
// against the ceiling.
func validateAmountBudget(amounts map[string]decimal.Decimal, ceiling decimal.Decimal) error {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	if total.GreaterThan(ceiling) {
		return &BudgetExceededError{Excess: total.Sub(ceiling)}
	}
	return nil
}
