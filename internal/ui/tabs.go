package ui

import (
	"strings"

	"cloudxfer/internal/session"

	"github.com/charmbracelet/lipgloss"
)

// TitleInfo is what the title bar shows.
type TitleInfo struct {
	Host  string
	State session.State
	Code  string
	Busy  string
}

var (
	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Background(lipgloss.Color("#1A1A1A")).
				Padding(0, 2)

	tabBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#0F0F0F"))
)

// RenderTitleBar renders the top bar: app name, server and session segments.
func RenderTitleBar(info TitleInfo, width int) string {
	parts := []string{
		tabActiveStyle.Render("cloudxfer"),
		tabInactiveStyle.Render(HostLabel(info.Host)),
		tabInactiveStyle.Render(SessionLabel(info.State, info.Code)),
	}
	if info.Busy != "" {
		parts = append(parts, tabInactiveStyle.Render("⟳ "+info.Busy))
	}

	bar := strings.Join(parts, " ")
	padding := width - lipgloss.Width(bar)
	if padding > 0 {
		bar += strings.Repeat(" ", padding)
	}
	return tabBarStyle.Width(width).Render(bar)
}

// HostLabel describes the configured server.
func HostLabel(host string) string {
	if host == "" {
		return "○ no server"
	}
	return "● " + host
}

// SessionLabel describes the session state.
func SessionLabel(state session.State, code string) string {
	switch state {
	case session.Unlocked:
		return "● session " + code
	case session.Polling:
		return "◌ verifying " + code
	default:
		return "○ locked"
	}
}
