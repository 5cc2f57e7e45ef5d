package ui

import (
	"errors"
	"strings"

	"cloudxfer/internal/session"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var errDigitsOnly = errors.New("digits only")

// CodeBarModel is the session code entry with its state indicator.
type CodeBarModel struct {
	input   textinput.Model
	spin    spinner.Model
	state   session.State
	focused bool
	width   int
}

// NewCodeBarModel creates a code bar prefilled with code.
func NewCodeBarModel(code string) CodeBarModel {
	t := textinput.New()
	t.Prompt = "Code: "
	t.Placeholder = "000000"
	t.CharLimit = session.CodeLength
	t.Width = session.CodeLength + 1
	t.Validate = func(s string) error {
		for _, r := range s {
			if r < '0' || r > '9' {
				return errDigitsOnly
			}
		}
		return nil
	}
	t.SetValue(code)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	return CodeBarModel{input: t, spin: s}
}

// Focus gives the code input keyboard focus.
func (m *CodeBarModel) Focus() tea.Cmd {
	m.focused = true
	if m.state != session.Locked {
		return nil
	}
	return m.input.Focus()
}

// Blur removes keyboard focus.
func (m *CodeBarModel) Blur() {
	m.focused = false
	m.input.Blur()
}

// Focused reports whether the code bar has focus.
func (m CodeBarModel) Focused() bool {
	return m.focused
}

// Value returns the code typed so far.
func (m CodeBarModel) Value() string {
	return m.input.Value()
}

// SetWidth sets the rendered width.
func (m *CodeBarModel) SetWidth(w int) {
	m.width = w
}

// SetState mirrors the session state. An empty code keeps what was typed
// unless the session went back to Locked after a reset or rejection, in
// which case the entry is cleared.
func (m *CodeBarModel) SetState(state session.State, code string) tea.Cmd {
	prev := m.state
	m.state = state
	switch state {
	case session.Locked:
		if prev != session.Locked {
			m.input.SetValue("")
		}
		if m.focused {
			return m.input.Focus()
		}
	case session.Polling:
		m.input.Blur()
		m.input.SetValue(code)
		return m.spin.Tick
	case session.Unlocked:
		m.input.Blur()
		m.input.SetValue(code)
	}
	return nil
}

// State returns the mirrored session state.
func (m CodeBarModel) State() session.State {
	return m.state
}

func (m CodeBarModel) Update(msg tea.Msg) (CodeBarModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.state != session.Polling {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if !m.focused {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			switch m.state {
			case session.Locked:
				code := strings.TrimSpace(m.input.Value())
				return m, func() tea.Msg { return SubmitCodeMsg{Code: code} }
			case session.Unlocked:
				return m, func() tea.Msg { return ResetSessionMsg{} }
			}
			return m, nil
		}
		if m.state != session.Locked {
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

var (
	codeLockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF9500")).Bold(true)
	codeUnlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Bold(true)
	codeBarStyle      = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#555555")).
				Padding(0, 1)
	codeBarFocusedStyle = codeBarStyle.BorderForeground(lipgloss.Color("#7D56F4"))
)

func (m CodeBarModel) View() string {
	var status, action string
	switch m.state {
	case session.Locked:
		status = codeLockedStyle.Render("○ locked")
		action = "Enter: verify"
	case session.Polling:
		status = m.spin.View() + " verifying…"
		action = ""
	case session.Unlocked:
		status = codeUnlockedStyle.Render("● unlocked")
		action = "Enter: reset"
	}
	line := lipgloss.JoinHorizontal(lipgloss.Center, m.input.View(), "  ", status)
	if action != "" {
		line += "  " + hintStyle.Render(action)
	}

	style := codeBarStyle
	if m.focused {
		style = codeBarFocusedStyle
	}
	if m.width > 2 {
		style = style.Width(m.width - 2)
	}
	return style.Render(line)
}
