package ui

import (
	"fmt"
	"strings"

	"cloudxfer/internal/transfer"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"
)

// FileListModel is the remote file list with multi-selection.
type FileListModel struct {
	files    []transfer.RemoteFile
	selected map[int]bool
	cursor   int
	visible  bool
	loading  bool
	status   string
	width    int
	height   int
}

// NewFileListModel creates a hidden, empty file list.
func NewFileListModel() FileListModel {
	return FileListModel{selected: map[int]bool{}}
}

// Show opens the list in the loading state.
func (m *FileListModel) Show() {
	m.visible = true
	m.loading = true
	m.status = ""
}

// Hide closes the list.
func (m *FileListModel) Hide() {
	m.visible = false
}

// Visible reports whether the list is open.
func (m FileListModel) Visible() bool {
	return m.visible
}

// SetFiles replaces the list content and clears the selection.
func (m *FileListModel) SetFiles(files []transfer.RemoteFile) {
	m.files = files
	m.selected = map[int]bool{}
	m.loading = false
	if m.cursor >= len(files) {
		m.cursor = 0
	}
}

// SetStatus shows msg in the footer.
func (m *FileListModel) SetStatus(msg string) {
	m.loading = false
	m.status = msg
}

// SetDimensions sets the width and height for the list.
func (m *FileListModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
}

// Selected returns the selected files in list order, or the file under the
// cursor when nothing is marked.
func (m FileListModel) Selected() []transfer.RemoteFile {
	picked := lo.Filter(m.files, func(_ transfer.RemoteFile, i int) bool { return m.selected[i] })
	if len(picked) == 0 && m.cursor < len(m.files) {
		return []transfer.RemoteFile{m.files[m.cursor]}
	}
	return picked
}

// CanLoadText reports whether the selection is exactly one text file.
func (m FileListModel) CanLoadText() bool {
	sel := m.Selected()
	return len(sel) == 1 && transfer.IsTextFile(sel[0].FileName)
}

func (m FileListModel) Update(msg tea.Msg) (FileListModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q":
			m.Hide()
			return m, func() tea.Msg { return CloseOverlayMsg{} }

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.files)-1 {
				m.cursor++
			}

		case " ", "x":
			if len(m.files) > 0 {
				m.selected[m.cursor] = !m.selected[m.cursor]
				if m.cursor < len(m.files)-1 {
					m.cursor++
				}
			}

		case "a":
			all := len(m.files) > 0 && lo.EveryBy(lo.Range(len(m.files)), func(i int) bool { return m.selected[i] })
			for i := range m.files {
				m.selected[i] = !all
			}

		case "r":
			m.loading = true
			return m, func() tea.Msg { return RefreshFilesMsg{} }

		case "enter", "d":
			if len(m.files) == 0 {
				return m, nil
			}
			files := m.Selected()
			m.Hide()
			return m, func() tea.Msg { return DownloadRequestMsg{Files: files} }

		case "t":
			if !m.CanLoadText() {
				m.status = "Select exactly one text file to load"
				return m, nil
			}
			file := m.Selected()[0]
			m.Hide()
			return m, func() tea.Msg { return LoadTextRequestMsg{File: file} }
		}
	}
	return m, nil
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	activePanelStyle = panelStyle.
				BorderForeground(lipgloss.Color("#7D56F4"))

	fileSelectedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#7D56F4")).
				Foreground(lipgloss.Color("#FFFFFF"))

	textFileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#56D1F4"))

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#AAAAAA")).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#444444"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
)

func (m FileListModel) View() string {
	if !m.visible {
		return ""
	}
	panelWidth := m.width * 2 / 3
	if panelWidth < 40 {
		panelWidth = 40
	}
	panelHeight := m.height - 6
	if panelHeight < 6 {
		panelHeight = 6
	}

	marked := lo.Count(lo.Values(m.selected), true)
	header := headerStyle.Width(panelWidth - 4).Render(
		fmt.Sprintf("Remote files (%d, %d selected)", len(m.files), marked),
	)

	var rows []string
	switch {
	case m.loading:
		rows = append(rows, statusBarStyle.Render("Loading…"))
	case len(m.files) == 0:
		rows = append(rows, statusBarStyle.Render("No files"))
	}

	visibleHeight := panelHeight - 5
	if visibleHeight < 1 {
		visibleHeight = 1
	}
	start := 0
	if m.cursor >= visibleHeight {
		start = m.cursor - visibleHeight + 1
	}
	nameWidth := panelWidth - 12
	for i := start; !m.loading && i < len(m.files) && i < start+visibleHeight; i++ {
		f := m.files[i]
		mark := "[ ]"
		if m.selected[i] {
			mark = "[x]"
		}
		name := runewidth.Truncate(f.FileName, nameWidth, "…")
		style := fileStyle
		if transfer.IsTextFile(f.FileName) {
			style = textFileStyle
		}
		line := style.Render(mark + " " + name)
		if i == m.cursor {
			line = fileSelectedStyle.Width(panelWidth - 4).Render(mark + " " + name)
		}
		rows = append(rows, line)
	}

	footer := " Space: mark • a: all • Enter: download • t: load text • r: refresh • Esc: close"
	if m.status != "" {
		footer += " | " + m.status
	}

	content := header + "\n" + strings.Join(rows, "\n")
	panel := activePanelStyle.Width(panelWidth).Height(panelHeight).Render(content)
	view := lipgloss.JoinVertical(lipgloss.Left, panel, statusBarStyle.Render(footer))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, view)
}
