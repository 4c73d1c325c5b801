package insight

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// FindingsExtractor derives short bullet findings from query rows
type FindingsExtractor interface {
	Findings(rows []map[string]any) []string
}

// ColumnFindings reports, per column, how many records carry a value and
// the most common distinct values
type ColumnFindings struct {
	// TopValues caps the distinct values listed per column (default 3)
	TopValues int
}

const maxValueLen = 60

func (c ColumnFindings) Findings(rows []map[string]any) []string {
	if len(rows) == 0 {
		return []string{"No records matched the query"}
	}

	top := c.TopValues
	if top <= 0 {
		top = 3
	}

	columns := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			columns[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(columns))
	for k := range columns {
		names = append(names, k)
	}
	sort.Strings(names)

	findings := make([]string, 0, len(names))
	for _, col := range names {
		present := 0
		counts := make(map[string]int)
		for _, row := range rows {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			present++
			counts[display(v)]++
		}
		if present == 0 {
			findings = append(findings, fmt.Sprintf("%s: no values", col))
			continue
		}

		values := make([]string, 0, len(counts))
		for v := range counts {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool {
			if counts[values[i]] != counts[values[j]] {
				return counts[values[i]] > counts[values[j]]
			}
			return values[i] < values[j]
		})

		leading := values
		if len(leading) > top {
			leading = leading[:top]
		}
		finding := fmt.Sprintf("%s: %d of %d records, %d distinct (%s)",
			col, present, len(rows), len(counts), strings.Join(leading, ", "))
		findings = append(findings, finding)
	}
	return findings
}

func display(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(data)
		}
	default:
		s = fmt.Sprint(val)
	}
	return truncate(s, maxValueLen)
}

// truncate shortens s to at most n bytes, ending in "...", without splitting
// a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
