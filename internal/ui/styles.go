package ui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorPrimary   = lipgloss.Color("#16A34A") // Grass green
	ColorSecondary = lipgloss.Color("#86EFAC") // Light green
	ColorAccent    = lipgloss.Color("#38BDF8") // Sky (success)
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorMuted     = lipgloss.Color("#626262") // Gray
	ColorText      = lipgloss.Color("#FAFAFA") // White
	ColorSubtle    = lipgloss.Color("#A1A1AA") // Zinc
)

// Shared styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SelectedStyle highlights the active account name.
	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	// FocusedBoxStyle frames the sign-in link.
	FocusedBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1)
)
