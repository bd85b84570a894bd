// Package table renders the CLI's tabular and heading output.
package table

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/pterm/pterm"
)

var headingStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#1FA382"))

// PrintTableNoPad prints data left-aligned without the default row padding.
func PrintTableNoPad(data pterm.TableData, hasHeader bool) {
	if len(data) == 0 {
		return
	}
	_ = pterm.DefaultTable.
		WithHasHeader(hasHeader).
		WithLeftAlignment().
		WithData(data).
		Render()
}

// Heading styles s as a section heading.
func Heading(s string) string {
	return headingStyle.Render(s)
}
