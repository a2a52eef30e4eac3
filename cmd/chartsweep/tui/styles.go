// Package tui provides the live progress view shown while chartsweep works
// through a library. It uses Bubble Tea for the event loop and Lip Gloss for
// styling.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the TUI.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	accentColor  = lipgloss.Color("#00D9FF")
	warningColor = lipgloss.Color("#FFC107")
	mutedColor   = lipgloss.Color("#666666")
)

var (
	// boxStyle frames the whole view.
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	stageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	warningTextStyle = lipgloss.NewStyle().
				Foreground(warningColor)
)

// truncatePath shortens path from the left to fit maxLen.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-(maxLen-3):]
}
