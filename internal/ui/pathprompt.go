package ui

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
)

// ParsePaths splits text pasted or dropped into the terminal into paths.
// It understands single and double quotes, Tk style braces, backslash
// escaped spaces and file:// URIs.
func ParsePaths(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		inTok bool
		quote rune
	)
	flush := func() {
		if inTok {
			out = append(out, cur.String())
		}
		cur.Reset()
		inTok = false
	}

	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inTok = true
		case r == '{' && !inTok:
			quote = '}'
			inTok = true
		case r == '\\' && i+1 < len(rs) && strings.ContainsRune(` '"`, rs[i+1]):
			cur.WriteRune(rs[i+1])
			inTok = true
			i++
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
			inTok = true
		}
	}
	flush()

	return lo.FilterMap(out, func(p string, _ int) (string, bool) {
		p = fromFileURI(p)
		return p, p != ""
	})
}

func fromFileURI(p string) string {
	if !strings.HasPrefix(strings.ToLower(p), "file://") {
		return p
	}
	u, err := url.Parse(p)
	if err != nil || u.Path == "" {
		return p
	}
	path := u.Path
	// file:///C:/dir maps to /C:/dir
	if runtime.GOOS == "windows" && len(path) > 2 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// PathPromptModel collects local paths to upload.
type PathPromptModel struct {
	input   textinput.Model
	visible bool
	err     string
	width   int
	height  int
}

// NewPathPromptModel creates a hidden path prompt.
func NewPathPromptModel() PathPromptModel {
	t := textinput.New()
	t.Placeholder = "drop files here or type paths"
	t.Width = 60
	return PathPromptModel{input: t}
}

// Show opens the prompt, optionally prefilled with pasted text.
func (m *PathPromptModel) Show(prefill string) tea.Cmd {
	m.visible = true
	m.err = ""
	m.input.SetValue(prefill)
	m.input.CursorEnd()
	return m.input.Focus()
}

// Hide closes the prompt.
func (m *PathPromptModel) Hide() {
	m.visible = false
	m.input.Blur()
}

// Visible reports whether the prompt is open.
func (m PathPromptModel) Visible() bool {
	return m.visible
}

func (m PathPromptModel) Update(msg tea.Msg) (PathPromptModel, tea.Cmd) {
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
			return m, func() tea.Msg { return CloseOverlayMsg{} }
		case tea.KeyEnter:
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PathPromptModel) submit() (PathPromptModel, tea.Cmd) {
	paths := ParsePaths(m.input.Value())
	if len(paths) == 0 {
		m.err = "No path given"
		return m, nil
	}
	var bad []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		switch {
		case err != nil:
			bad = append(bad, p+" (not found)")
		case fi.IsDir():
			bad = append(bad, p+" (directory)")
		}
	}
	if len(bad) > 0 {
		m.err = "Cannot upload: " + strings.Join(bad, ", ")
		return m, nil
	}
	m.Hide()
	return m, func() tea.Msg { return UploadFilesMsg{Paths: paths} }
}

func (m PathPromptModel) View() string {
	if !m.visible {
		return ""
	}
	rows := []string{
		titleStyle.Render("Upload files"),
		"",
		m.input.View(),
	}
	if m.err != "" {
		rows = append(rows, "", errorStyle.Render("⚠  "+m.err))
	}
	rows = append(rows, "", hintStyle.Render("Separate paths with spaces; quote paths containing spaces • Enter: upload • Esc: cancel"))
	box := focusedInputBoxStyle.Width(70).Render(strings.Join(rows, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// FilePickerModel browses the local disk for a file to upload.
type FilePickerModel struct {
	picker  filepicker.Model
	visible bool
	width   int
	height  int
}

// NewFilePickerModel creates a hidden picker rooted at dir.
func NewFilePickerModel(dir string) FilePickerModel {
	fp := filepicker.New()
	fp.CurrentDirectory = dir
	fp.AutoHeight = false
	fp.Height = 15
	return FilePickerModel{picker: fp}
}

// Show opens the picker and reads its directory.
func (m *FilePickerModel) Show() tea.Cmd {
	m.visible = true
	return m.picker.Init()
}

// Hide closes the picker.
func (m *FilePickerModel) Hide() {
	m.visible = false
}

// Visible reports whether the picker is open.
func (m FilePickerModel) Visible() bool {
	return m.visible
}

func (m FilePickerModel) Update(msg tea.Msg) (FilePickerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.picker.Height = max(msg.Height-10, 5)
		return m, nil
	case tea.KeyMsg:
		if !m.visible {
			return m, nil
		}
		if msg.Type == tea.KeyEsc {
			m.Hide()
			return m, func() tea.Msg { return CloseOverlayMsg{} }
		}
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok && m.visible {
		m.Hide()
		return m, func() tea.Msg { return UploadFilesMsg{Paths: []string{path}} }
	}
	return m, cmd
}

func (m FilePickerModel) View() string {
	if !m.visible {
		return ""
	}
	content := fmt.Sprintf("%s\n%s\n\n%s",
		titleStyle.Render("Pick a file to upload"),
		hintStyle.Render(m.picker.CurrentDirectory),
		m.picker.View(),
	)
	box := activePanelStyle.Render(content + "\n\n" + hintStyle.Render("Enter: upload • ←/→: navigate • Esc: cancel"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
