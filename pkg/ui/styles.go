package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))

	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))

	pendingStyle = lipgloss.NewStyle().Faint(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	typingStyle  = lipgloss.NewStyle().Faint(true).Italic(true)
	helpStyle    = lipgloss.NewStyle().Faint(true)

	stateStyles = map[string]lipgloss.Style{
		"connected":           lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"connecting":          lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"disconnected":        lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"closed-unauthorized": lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)
