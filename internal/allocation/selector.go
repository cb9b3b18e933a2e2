package allocation

import (
	"math"
	"sort"

	"graph-allocopt/internal/solver"
)

// profitTolerance is the absolute tolerance under which two candidate
// profits count as equal. Rounding variants of the same solution differ
// by far less than this.
const profitTolerance = 1e-9

// rankedCandidate is one selected candidate: its index in the engine
// response, its nonzero-count group and its total profit.
type rankedCandidate struct {
	Index        int
	NonzeroCount int
	Profit       float64
}

// rankCandidates groups candidates by nonzero count, keeps the best
// profit per group, orders groups by profit descending and returns the
// top nReport. Ties within tolerance prefer fewer nonzeros (lower gas
// exposure).
func rankCandidates(resp *solver.Response, nReport int) []rankedCandidate {
	best := make(map[int]rankedCandidate)
	for i := range resp.Candidates {
		rc := rankedCandidate{
			Index:        i,
			NonzeroCount: resp.NonzeroCounts[i],
			Profit:       candidateProfit(resp.Profits[i]),
		}

		cur, ok := best[rc.NonzeroCount]
		if !ok || better(rc, cur, resp) {
			best[rc.NonzeroCount] = rc
		}
	}

	ranked := make([]rankedCandidate, 0, len(best))
	for _, rc := range best {
		ranked = append(ranked, rc)
	}
	sort.Slice(ranked, func(a, b int) bool {
		if math.Abs(ranked[a].Profit-ranked[b].Profit) <= profitTolerance {
			return ranked[a].NonzeroCount < ranked[b].NonzeroCount
		}
		return ranked[a].Profit > ranked[b].Profit
	})

	if len(ranked) > nReport {
		ranked = ranked[:nReport]
	}
	return ranked
}

// better reports whether a beats b within one nonzero-count group.
func better(a, b rankedCandidate, resp *solver.Response) bool {
	if math.Abs(a.Profit-b.Profit) <= profitTolerance {
		return countNonzeros(resp.Candidates[a.Index]) < countNonzeros(resp.Candidates[b.Index])
	}
	return a.Profit > b.Profit
}

// candidateProfit sums one profit column, NaN entries ignored.
func candidateProfit(profits []float64) float64 {
	var sum float64
	for _, p := range profits {
		if math.IsNaN(p) {
			continue
		}
		sum += p
	}
	return sum
}

func countNonzeros(xs []float64) int {
	var n int
	for _, x := range xs {
		if x > 0 {
			n++
		}
	}
	return n
}
