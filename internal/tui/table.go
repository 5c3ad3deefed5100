package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// table is a minimal static-data table, adapted from the teacher's
// SimpleTable for the task-status grid.
type table struct {
	Headers []string
	Rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{Headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *table) view(s Styles) string {
	if len(t.Rows) == 0 {
		return s.Muted.Render("(no tasks)")
	}

	colWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(colWidths) {
				if w := lipgloss.Width(cell); w > colWidths[i] {
					colWidths[i] = w
				}
			}
		}
	}
	for i := range colWidths {
		colWidths[i] += 2
	}

	headerStyle := s.Bold.Padding(0, 1)
	rowStyle := s.Body.Padding(0, 1)
	sepStyle := s.Muted

	var sb strings.Builder
	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Width(colWidths[i]).Render(h))
		if i < len(t.Headers)-1 {
			sb.WriteString(sepStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	total := len(t.Headers) - 1
	for _, w := range colWidths {
		total += w
	}
	sb.WriteString(sepStyle.Render(strings.Repeat("-", total)) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i >= len(colWidths) {
				break
			}
			sb.WriteString(rowStyle.Width(colWidths[i]).Render(cell))
			if i < len(row)-1 {
				sb.WriteString(sepStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
