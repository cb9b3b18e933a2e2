package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders a report's allocations as a CSV string. Each row is
// one deployment within one strategy; strategy rows share an index so
// multi-option reports stay unambiguous.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("strategy,num_allocations,profit_grt,deployment_id,amount_grt\n")

	for i, s := range r.Strategies {
		for _, a := range s.Allocations {
			sb.WriteString(fmt.Sprintf("%d,%d,%s,%s,%s\n",
				i,
				s.NumAllocations,
				s.Profit,
				a.DeploymentID,
				a.AllocationAmount,
			))
		}
	}

	return sb.String()
}
