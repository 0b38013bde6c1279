package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	cellStyle = lipgloss.NewStyle().
			Width(9).
			Height(3).
			Align(lipgloss.Center, lipgloss.Center).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
	litNegativeStyle = cellStyle.
				Background(lipgloss.Color("52")).
				Foreground(lipgloss.Color("15")).
				BorderForeground(lipgloss.Color("196"))
	litNeutralStyle = cellStyle.
			Background(lipgloss.Color("24")).
			Foreground(lipgloss.Color("15")).
			BorderForeground(lipgloss.Color("39"))

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
	focusedButtonStyle = buttonStyle.
				BorderForeground(lipgloss.Color("69")).
				Foreground(lipgloss.Color("69")).
				Bold(true)

	redInk   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	greenInk = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("69")).
			Padding(1, 2)
)
