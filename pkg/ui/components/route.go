// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RouteLeg is one pool inside a route step. SplitPercent is zero when the
// whole step flows through this leg.
type RouteLeg struct {
	Description  string
	SplitPercent float64
}

// RouteStep is one sequential position in a route; parallel legs mean the
// amount is split across pools at this position.
type RouteStep struct {
	Legs []RouteLeg
}

// RouteComponent renders the detailed route of the selected quote.
type RouteComponent struct {
	source      string
	minReceived string
	steps       []RouteStep
}

// NewRouteComponent creates a new route component.
func NewRouteComponent() *RouteComponent {
	return &RouteComponent{}
}

// Update replaces the displayed route.
func (c *RouteComponent) Update(source, minReceived string, steps []RouteStep) {
	c.source = source
	c.minReceived = minReceived
	c.steps = steps
}

// Clear empties the component.
func (c *RouteComponent) Clear() {
	c.source = ""
	c.minReceived = ""
	c.steps = nil
}

// View renders the route component.
func (c *RouteComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	splitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("ROUTE"))
	if c.source != "" {
		sb.WriteString(dimStyle.Render("  via " + c.source))
	}
	sb.WriteString("\n\n")

	if len(c.steps) == 0 {
		sb.WriteString(dimStyle.Render("  Select a quote to inspect its route"))
		return sb.String()
	}

	for i, step := range c.steps {
		if len(step.Legs) == 1 {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step.Legs[0].Description))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %d. split across %d pools\n", i+1, len(step.Legs)))
		for _, leg := range step.Legs {
			sb.WriteString(fmt.Sprintf("     %s %s\n",
				splitStyle.Render(fmt.Sprintf("%5.1f%%", leg.SplitPercent)),
				leg.Description))
		}
	}

	if c.minReceived != "" {
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render("  Min received after slippage: " + c.minReceived))
		sb.WriteString("\n")
	}

	return sb.String()
}
