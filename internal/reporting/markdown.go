package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Allocation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Indexer: %s | Epoch: %d | Mode: %s\n\n", r.IndexerAddress, r.Epoch, r.Mode))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	}

	if len(r.Strategies) == 0 {
		sb.WriteString("No strategies available.\n")
		return sb.String()
	}

	for i, s := range r.Strategies {
		if len(r.Strategies) > 1 {
			sb.WriteString(fmt.Sprintf("## Strategy %d\n\n", i+1))
		} else {
			sb.WriteString("## Strategy\n\n")
		}
		sb.WriteString(fmt.Sprintf("Allocations: %d | Estimated profit: %s GRT\n\n", s.NumAllocations, s.Profit))

		sb.WriteString("| Deployment | Amount (GRT) |\n")
		sb.WriteString("|------------|-------------|\n")
		for _, a := range s.Allocations {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", a.DeploymentID, a.AllocationAmount))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
