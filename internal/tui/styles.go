package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPurple = lipgloss.Color("#7D56F4")
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4141")
	colorGray   = lipgloss.Color("#626262")
	colorYellow = lipgloss.Color("#FFC107")
	colorWhite  = lipgloss.Color("#FFFFFF")

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true).
			MarginBottom(1)

	styleFrame = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(0, 1)

	styleCollection = lipgloss.NewStyle().
			Foreground(colorWhite).
			Bold(true)

	styleDim = lipgloss.NewStyle().
			Foreground(colorGray)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	styleStopped = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)
)
