package insight

import (
	"fmt"
	"strings"
)

// Markdown renders the report in the "Data Analysis Results" layout
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Data Analysis Results\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", r.Question)

	b.WriteString("## Summary\n")
	b.WriteString(r.Summary)
	b.WriteString("\n\n")

	b.WriteString("## Analysis\n")
	b.WriteString(r.Analysis)
	b.WriteString("\n\n")

	b.WriteString("## Key Findings\n")
	for i, f := range r.KeyFindings {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "• %s", f)
	}
	b.WriteString("\n\n")

	b.WriteString("## Technical Details\n")
	fmt.Fprintf(&b, "**Records Found:** %d\n", len(r.Rows))
	fmt.Fprintf(&b, "**Query:** `%s`", r.Query)
	return b.String()
}
