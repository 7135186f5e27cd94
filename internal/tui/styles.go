package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed     = lipgloss.Color("#FF5F5F")
	colorGreen   = lipgloss.Color("#5FD787")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorCyan    = lipgloss.Color("#5FD7FF")
	colorMagenta = lipgloss.Color("#D787FF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#EEEEEE")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	phaseStyles = map[string]lipgloss.Style{
		"idle":        lipgloss.NewStyle().Foreground(colorGray),
		"calibrating": lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		"listening":   lipgloss.NewStyle().Foreground(colorRed).Bold(true),
		"aggregating": lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		"responding":  lipgloss.NewStyle().Foreground(colorMagenta).Bold(true),
		"speaking":    lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		"error":       lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	}

	userLabelStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorMagenta).
				Bold(true)

	textStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	interimStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Italic(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	levelGreenStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	levelYellowStyle = lipgloss.NewStyle().Foreground(colorYellow)
	levelGrayStyle   = lipgloss.NewStyle().Foreground(colorGray)

	onStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	offStyle = lipgloss.NewStyle().Foreground(colorGray)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)
)
