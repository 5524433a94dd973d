package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. A single cyan accent keeps output readable over both
// light and dark terminals.
const (
	ColorCyan     = "51"  // Primary accent
	ColorCyanDim  = "30"  // Dimmed accent for secondary values
	ColorWhite    = "255" // Headers
	ColorGray     = "245" // Labels
	ColorDarkGray = "238" // Separators, muted text
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings, deletion notices
	ColorGreen    = "40"  // Success, completed jobs
)

// Styles holds the lipgloss styles used by CLI output.
type Styles struct {
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Accent  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Score   lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Value:   lipgloss.NewStyle(),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyanDim)),
	}
}

// NoColorStyles returns an unstyled set for plain output.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Value:   lipgloss.NewStyle(),
		Accent:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
	}
}

// GetStyles picks a style set based on the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
