package ui

import (
	"strings"

	"cloudxfer/internal/hostaddr"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// HostDialogModel asks for the server address.
type HostDialogModel struct {
	input   textinput.Model
	visible bool
	err     string
	current string
	width   int
	height  int
}

// NewHostDialogModel creates a hidden server dialog.
func NewHostDialogModel() HostDialogModel {
	t := textinput.New()
	t.Placeholder = "host or host:port"
	t.CharLimit = 512
	t.Width = 40
	return HostDialogModel{input: t}
}

// Show opens the dialog prefilled with current.
func (m *HostDialogModel) Show(current string) tea.Cmd {
	m.visible = true
	m.err = ""
	m.current = current
	m.input.SetValue(current)
	m.input.CursorEnd()
	return m.input.Focus()
}

// Hide closes the dialog.
func (m *HostDialogModel) Hide() {
	m.visible = false
	m.err = ""
	m.input.Blur()
}

// Visible reports whether the dialog is open.
func (m HostDialogModel) Visible() bool {
	return m.visible
}

// SetError shows msg under the input.
func (m *HostDialogModel) SetError(msg string) {
	m.err = msg
}

func (m HostDialogModel) Update(msg tea.Msg) (HostDialogModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc:
			m.Hide()
			return m, func() tea.Msg { return HostCancelledMsg{} }
		case tea.KeyEnter:
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if _, ok := msg.(tea.KeyMsg); ok {
		m.err = ""
	}
	return m, cmd
}

func (m HostDialogModel) submit() (HostDialogModel, tea.Cmd) {
	raw := m.input.Value()
	ok, host := hostaddr.Validate(raw)
	logrus.WithFields(logrus.Fields{"function": "HostDialog.submit", "raw": raw, "ok": ok}).Debug("Host submitted")
	if !ok {
		if strings.TrimSpace(raw) == "" {
			m.err = "Server address is required"
		} else {
			m.err = "Invalid address: use a domain name, IPv4 or [IPv6], optionally with :port"
		}
		return m, nil
	}
	m.Hide()
	return m, func() tea.Msg { return HostSubmittedMsg{Host: host} }
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(10)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(1, 2).
			Width(60)

	focusedInputBoxStyle = inputBoxStyle.
				BorderForeground(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))
)

func (m HostDialogModel) View() string {
	if !m.visible {
		return ""
	}
	formTitleStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("62")).
		Foreground(lipgloss.Color("230")).
		Padding(0, 1)

	rows := []string{
		formTitleStyle.Render("Server"),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center, labelStyle.Render("Address:"), m.input.View()),
	}
	if m.current != "" {
		rows = append(rows, "", hintStyle.Render("Current: "+m.current))
	}
	if m.err != "" {
		rows = append(rows, "", errorStyle.Render("⚠  "+m.err))
	}
	rows = append(rows, "", hintStyle.Render("Enter: save • Esc: cancel"))

	box := focusedInputBoxStyle.Render(strings.Join(rows, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
