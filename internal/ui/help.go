package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var helpContent = `
  Session
  Enter     Verify the typed code / reset when unlocked
  Ctrl+R    Reset session
  Ctrl+G    Configure server address

  Transfers (session must be unlocked)
  Ctrl+S    Upload the text buffer as a .txt file
  Ctrl+U    Upload files: paste or drop paths into the prompt
  Ctrl+O    Upload a file chosen in the file picker
  Ctrl+L    List remote files

  Remote file list
  ↑/↓ j/k   Move
  Space     Mark / unmark
  a         Mark all / none
  Enter     Download marked files
  t         Load the selected text file into the buffer
  r         Refresh

  General
  Tab       Cycle focus: code, text, log
  F1        Toggle this help overlay
  Esc       Close dialog
  Ctrl+C    Quit
`

var helpStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#7D56F4")).
	Padding(1, 3).
	Bold(false)

// RenderHelp returns the help overlay view.
func RenderHelp(width, height int) string {
	box := helpStyle.Render(helpContent)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
