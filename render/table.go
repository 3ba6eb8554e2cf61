// Package render formats query results for the user.
package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// MarkdownTable renders rows as a GitHub flavored Markdown table with a header row.
func MarkdownTable(columns []string, rows [][]string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(cleanCells(columns))
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for _, row := range rows {
		table.Append(cleanCells(row))
	}
	table.Render()
	return buf.String()
}

func cleanCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "\r\n", " ")
		c = strings.ReplaceAll(c, "\n", " ")
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

var separatorRe = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)

// HasMarkdownTable reports whether text contains a header row followed by a
// separator row.
func HasMarkdownTable(text string) bool {
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if separatorRe.MatchString(lines[i]) && strings.Contains(lines[i-1], "|") {
			return true
		}
	}
	return false
}

// CountTableRows returns the number of data rows of the first Markdown table in text.
func CountTableRows(text string) int {
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if !separatorRe.MatchString(lines[i]) || !strings.Contains(lines[i-1], "|") {
			continue
		}
		n := 0
		for _, l := range lines[i+1:] {
			if !strings.Contains(l, "|") {
				break
			}
			n++
		}
		return n
	}
	return 0
}

// LimitTableRows drops data rows beyond max from every Markdown table in text.
// It reports whether any row was dropped.
func LimitTableRows(text string, max int) (string, bool) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	dropped := false
	for i := 0; i < len(lines); i++ {
		out = append(out, lines[i])
		if i == 0 || !separatorRe.MatchString(lines[i]) || !strings.Contains(lines[i-1], "|") {
			continue
		}
		n := 0
		for i+1 < len(lines) && strings.Contains(lines[i+1], "|") {
			i++
			if n < max {
				out = append(out, lines[i])
			} else {
				dropped = true
			}
			n++
		}
	}
	return strings.Join(out, "\n"), dropped
}

// WriteCSV writes a header row and rows as comma separated values.
func WriteCSV(w io.Writer, columns []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}
