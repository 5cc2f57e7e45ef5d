package ui

import (
	"strings"
	"testing"
	"time"
)

func fixedLogPane() LogPaneModel {
	m := NewLogPaneModel()
	m.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local) }
	return m
}

func TestLogPaneAppendTimestamps(t *testing.T) {
	m := fixedLogPane()
	m.Append("hello")
	lines := m.Lines()
	if len(lines) != 1 || lines[0] != "[2024-05-06 07:08:09] hello" {
		t.Errorf("Lines = %q", lines)
	}
}

func TestLogPaneSplitsMultiline(t *testing.T) {
	m := fixedLogPane()
	m.Append("one\ntwo\n")
	if n := len(m.Lines()); n != 2 {
		t.Errorf("got %d lines, want 2", n)
	}
}

func TestLogPaneCapsHistory(t *testing.T) {
	m := fixedLogPane()
	for i := 0; i < maxLogLines+25; i++ {
		m.Append("line")
	}
	if n := len(m.Lines()); n != maxLogLines {
		t.Errorf("got %d lines, want %d", n, maxLogLines)
	}
}

func TestLogPaneViewShowsNewest(t *testing.T) {
	m := fixedLogPane()
	m.SetDimensions(60, 4)
	for i := 0; i < 10; i++ {
		m.Append("old")
	}
	m.Append("newest entry")
	if !strings.Contains(m.View(), "newest entry") {
		t.Error("view should be scrolled to the newest line")
	}
}
