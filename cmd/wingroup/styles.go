package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// styleTable colors an already aligned table: bold header, dimmed rows for
// which dim returns true. Styling after alignment keeps escape codes out of
// tabwriter's width math.
func styleTable(table string, dim func(line string) bool) string {
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			lines[i] = headerStyle.Render(line)
		case dim != nil && dim(line):
			lines[i] = dimStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func runningLabel(running bool) string {
	if running {
		return okStyle.Render("yes")
	}
	return errStyle.Render("no")
}
