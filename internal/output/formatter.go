// Package output renders reports for the terminal or for other programs.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/kgraph/internal/insight"
)

// Format selects a renderer
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTable    Format = "table"
)

// Formats lists the accepted values for --format
var Formats = []Format{FormatMarkdown, FormatJSON, FormatYAML, FormatTable}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "md" {
		return FormatMarkdown, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want markdown, json, yaml or table)", s)
}

// DefaultFormat picks Markdown for an interactive terminal and JSON when
// output is piped
func DefaultFormat(f *os.File) Format {
	if f != nil && term.IsTerminal(int(f.Fd())) {
		return FormatMarkdown
	}
	return FormatJSON
}

// Formatter writes a report
type Formatter interface {
	Format(report *insight.Report, w io.Writer) error
}

func NewFormatter(f Format) Formatter {
	switch f {
	case FormatJSON:
		return JSONFormatter{}
	case FormatYAML:
		return YAMLFormatter{}
	case FormatTable:
		return TableFormatter{}
	default:
		return MarkdownFormatter{}
	}
}

type MarkdownFormatter struct{}

func (MarkdownFormatter) Format(report *insight.Report, w io.Writer) error {
	_, err := fmt.Fprintln(w, report.Markdown())
	return err
}

type JSONFormatter struct{}

func (JSONFormatter) Format(report *insight.Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

type YAMLFormatter struct{}

func (YAMLFormatter) Format(report *insight.Report, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// TableFormatter prints the rows as a table followed by the summary and
// analysis
type TableFormatter struct{}

const maxCellWidth = 48

func (TableFormatter) Format(report *insight.Report, w io.Writer) error {
	columns := Columns(report.Rows)
	if len(columns) == 0 {
		fmt.Fprintln(w, "(no records)")
	} else {
		table := tablewriter.NewWriter(w)
		header := make([]any, len(columns))
		for i, c := range columns {
			header[i] = c
		}
		table.Header(header...)

		for _, row := range report.Rows {
			cells := make([]any, len(columns))
			for i, c := range columns {
				cells[i] = Cell(row[c], maxCellWidth)
			}
			if err := table.Append(cells...); err != nil {
				return fmt.Errorf("failed to add table row: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	}

	fmt.Fprintf(w, "\n%s\n", report.Summary)
	if report.Analysis != "" {
		fmt.Fprintf(w, "\n%s\n", report.Analysis)
	}
	return nil
}

// Columns is the sorted union of keys across rows
func Columns(rows []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

// Cell renders a value on one line, truncated to width runes
func Cell(v any, width int) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
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

	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); width > 3 && len(r) > width {
		s = string(r[:width-3]) + "..."
	}
	return s
}
