package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Adaptive colors keep the list readable on light terminals.
var (
	colorPrimary   = lipgloss.AdaptiveColor{Light: "#1F6FEB", Dark: "#58A6FF"}
	colorMuted     = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}
	colorFg        = lipgloss.AdaptiveColor{Light: "#1F2328", Dark: "#E6EDF3"}
	colorBorder    = lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#30363D"}
	colorOpen      = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}
	colorTag       = lipgloss.AdaptiveColor{Light: "#8250DF", Dark: "#BC8CFF"}
	colorWarning   = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	colorError     = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	colorLowPrio   = lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#79C0FF"}
	colorHighlight = lipgloss.AdaptiveColor{Light: "#BF8700", Dark: "#E3B341"}
)

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorPrimary).
			Padding(0, 2)
	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	activePanelStyle = panelStyle.
				BorderForeground(colorPrimary).
				Padding(1, 2)

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorFg)
	subtitleStyle = lipgloss.NewStyle().Italic(true).Foreground(colorMuted)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)

	// tags and search tokens
	accentStyle    = lipgloss.NewStyle().Foreground(colorTag)
	highlightStyle = lipgloss.NewStyle().Foreground(colorHighlight).Underline(true)

	successStyle = lipgloss.NewStyle().Foreground(colorOpen)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)

	headerStyle    = lipgloss.NewStyle().Padding(0, 1)
	footerStyle    = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)
	statusBarStyle = lipgloss.NewStyle().Foreground(colorOpen)

	selectedItemStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	normalItemStyle   = lipgloss.NewStyle().Foreground(colorFg)
	closedItemStyle   = lipgloss.NewStyle().Foreground(colorMuted).Strikethrough(true)
)

var priorityStyles = map[int]lipgloss.Style{
	0: lipgloss.NewStyle().Foreground(colorLowPrio),
	1: lipgloss.NewStyle().Foreground(colorWarning),
	2: lipgloss.NewStyle().Foreground(colorError).Bold(true),
}

var priorityMarks = map[int]string{0: "!", 1: "!!", 2: "!!!"}

func renderPriority(p int) string {
	return priorityStyles[p].Render(fmt.Sprintf("%-3s", priorityMarks[p]))
}
