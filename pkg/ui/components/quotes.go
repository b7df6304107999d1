// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// QuoteRow represents one ranked quote in the comparison table.
type QuoteRow struct {
	Rank          int
	Source        string
	AmountOut     decimal.Decimal
	MinReceived   decimal.Decimal
	ImpactPercent float64
	GasCostUSD    float64
	Hops          int
	Route         string
}

// QuotesComponent renders the ranked quote comparison table.
type QuotesComponent struct {
	rows      []QuoteRow
	outSymbol string
	selected  int
}

// NewQuotesComponent creates a new quotes component.
func NewQuotesComponent() *QuotesComponent {
	return &QuotesComponent{}
}

// Update replaces the table contents, clamping the selection.
func (c *QuotesComponent) Update(rows []QuoteRow, outSymbol string) {
	c.rows = rows
	c.outSymbol = outSymbol
	if c.selected >= len(rows) {
		c.selected = 0
	}
}

// Selected returns the index of the highlighted row.
func (c *QuotesComponent) Selected() int {
	return c.selected
}

// MoveUp moves the selection up one row.
func (c *QuotesComponent) MoveUp() {
	if c.selected > 0 {
		c.selected--
	}
}

// MoveDown moves the selection down one row.
func (c *QuotesComponent) MoveDown() {
	if c.selected < len(c.rows)-1 {
		c.selected++
	}
}

// View renders the quotes component.
func (c *QuotesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	bestStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("QUOTES"))
	sb.WriteString("\n\n")

	if len(c.rows) == 0 {
		sb.WriteString(dimStyle.Render("  No quotes yet..."))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("    %-2s  %-12s  %18s  %8s  %8s  %4s  %s\n",
		"#", "Source", "Receive ("+c.outSymbol+")", "Impact", "Gas", "Hops", "Route"))
	sb.WriteString(dimStyle.Render("  " + strings.Repeat("─", 76)))
	sb.WriteString("\n")

	for i, row := range c.rows {
		marker := "  "
		if i == c.selected {
			marker = "▸ "
		}

		impactStr := fmt.Sprintf("%.2f%%", row.ImpactPercent)
		if row.ImpactPercent >= 3 {
			impactStr = warnStyle.Render(impactStr)
		}

		gasStr := "?"
		if row.GasCostUSD > 0 {
			gasStr = fmt.Sprintf("$%.2f", row.GasCostUSD)
		}

		line := fmt.Sprintf("%s  %-2d  %-12s  %18s  %8s  %8s  %4d  %s",
			marker, row.Rank, row.Source,
			row.AmountOut.StringFixed(6),
			impactStr, gasStr, row.Hops,
			dimStyle.Render(row.Route),
		)
		if row.Rank == 1 {
			line = bestStyle.Render(line) + bestStyle.Render("  ★ BEST")
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}
