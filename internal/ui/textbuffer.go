package ui

import (
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// TextBufferModel is the editable text that "upload text" sends.
type TextBufferModel struct {
	area textarea.Model
}

// NewTextBufferModel creates an empty, unlimited text buffer.
func NewTextBufferModel() TextBufferModel {
	a := textarea.New()
	a.Placeholder = "Type or paste text to upload…"
	a.ShowLineNumbers = false
	a.CharLimit = 0
	a.MaxHeight = 0
	a.MaxWidth = 0
	return TextBufferModel{area: a}
}

// Value returns the buffer content.
func (m TextBufferModel) Value() string {
	return m.area.Value()
}

// SetText replaces the buffer content.
func (m *TextBufferModel) SetText(text string) {
	m.area.SetValue(text)
}

// SetDimensions sizes the buffer including its border.
func (m *TextBufferModel) SetDimensions(width, height int) {
	m.area.SetWidth(max(width-4, 1))
	m.area.SetHeight(max(height-2, 1))
}

func (m *TextBufferModel) Focus() tea.Cmd { return m.area.Focus() }
func (m *TextBufferModel) Blur()          { m.area.Blur() }

// Focused reports whether the buffer has keyboard focus.
func (m TextBufferModel) Focused() bool {
	return m.area.Focused()
}

func (m TextBufferModel) Update(msg tea.Msg) (TextBufferModel, tea.Cmd) {
	var cmd tea.Cmd
	m.area, cmd = m.area.Update(msg)
	return m, cmd
}

func (m TextBufferModel) View() string {
	style := panelStyle
	if m.area.Focused() {
		style = activePanelStyle
	}
	return style.Render(m.area.View())
}
