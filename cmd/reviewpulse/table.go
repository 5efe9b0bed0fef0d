package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorPrimary = lipgloss.Color("39")
	colorMuted   = lipgloss.Color("245")

	tableBorderStyle = lipgloss.NewStyle().Foreground(colorMuted)
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
)

// newTable returns a bordered table with a styled header row.
func newTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
