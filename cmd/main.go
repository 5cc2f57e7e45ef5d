package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloudxfer/internal/config"
	"cloudxfer/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// logPath returns the path for the debug log file.
// When running via `go run` or from the project directory, logs go to
// .logs/debug.log in the working directory. Otherwise they go to
// $XDG_STATE_HOME/cloudxfer/debug.log (~/.local/state/cloudxfer/debug.log).
func logPath() string {
	exe, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exe)
		cwd, _ := os.Getwd()
		// Treat it as a local run when the binary lives under the working directory
		// (e.g. ./bin/cloudxfer) or in a go tmp build directory.
		if strings.HasPrefix(exeDir, cwd) || strings.Contains(exeDir, "go-build") {
			dir := filepath.Join(cwd, ".logs")
			_ = os.MkdirAll(dir, 0o755)
			return filepath.Join(dir, "debug.log")
		}
	}
	// Installed: use XDG state directory.
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, _ := os.UserHomeDir()
		stateDir = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(stateDir, "cloudxfer")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "debug.log")
}

// runTUI starts the interactive client. Log output goes to the debug log so
// it never draws over the alternate screen.
func runTUI(settings config.Settings, store *config.Store) error {
	path := logPath()
	f, err := tea.LogToFile(path, "debug")
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer func() { _ = f.Close() }()
	logrus.SetOutput(f)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	logrus.WithField("log", path).Info("=== cloudxfer starting ===")

	model := newAppModel(appEnv{
		settings: settings,
		store:    store,
		idle:     session.SystemIdle,
	})
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	final, err := p.Run()
	if m, ok := final.(AppModel); ok && !m.closed {
		m.shutdown()
	}
	return err
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
