package ui

import "github.com/charmbracelet/lipgloss"

// Color palette: a single amber accent on grays.
const (
	ColorAmber    = "214" // Primary accent
	ColorAmberDim = "136" // Inactive accents
	ColorWhite    = "255" // Headers
	ColorGray     = "245" // Labels
	ColorDarkGray = "238" // Borders, separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
)

// Styles holds all UI styles for TUI rendering.
type Styles struct {
	Header    lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	Active    lipgloss.Style
	Border    lipgloss.Style
	Panel     lipgloss.Style
	Sparkline lipgloss.Style
	Speed     lipgloss.Style
	Label     lipgloss.Style
	Code      lipgloss.Style
}

// DefaultStyles returns styled components for TUI mode.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAmber)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
		Sparkline: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmberDim)),
		Speed:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Code:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber)),
	}
}

// NoColorStyles returns unstyled components. Borders are kept.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:    plain,
		Success:   plain,
		Warning:   plain,
		Error:     plain,
		Dim:       plain,
		Active:    plain,
		Border:    plain,
		Panel:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		Sparkline: plain,
		Speed:     plain,
		Label:     plain,
		Code:      plain,
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
