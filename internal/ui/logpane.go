package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// maxLogLines bounds the log pane history.
const maxLogLines = 1000

// LogPaneModel is the scrolling activity log.
type LogPaneModel struct {
	view    viewport.Model
	lines   []string
	now     func() time.Time
	focused bool
}

// NewLogPaneModel creates an empty log pane.
func NewLogPaneModel() LogPaneModel {
	return LogPaneModel{
		view: viewport.New(40, 5),
		now:  time.Now,
	}
}

// Append adds a timestamped line and scrolls to the bottom.
func (m *LogPaneModel) Append(line string) {
	stamp := m.now().Format("2006-01-02 15:04:05")
	for _, l := range strings.Split(strings.TrimRight(line, "\n"), "\n") {
		m.lines = append(m.lines, "["+stamp+"] "+l)
	}
	if over := len(m.lines) - maxLogLines; over > 0 {
		m.lines = append([]string(nil), m.lines[over:]...)
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

// Lines returns the logged lines, oldest first.
func (m LogPaneModel) Lines() []string {
	return m.lines
}

// SetDimensions sizes the inner viewport.
func (m *LogPaneModel) SetDimensions(width, height int) {
	m.view.Width = max(width-4, 1)
	m.view.Height = max(height-2, 1)
	m.view.GotoBottom()
}

// Focus and Blur toggle keyboard scrolling.
func (m *LogPaneModel) Focus() { m.focused = true }
func (m *LogPaneModel) Blur()  { m.focused = false }

func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	if _, ok := msg.(tea.KeyMsg); ok && !m.focused {
		return m, nil
	}
	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m LogPaneModel) View() string {
	style := panelStyle
	if m.focused {
		style = activePanelStyle
	}
	return style.Width(m.view.Width + 2).Render(m.view.View())
}
