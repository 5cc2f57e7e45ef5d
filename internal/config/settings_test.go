package config

import (
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", s.Timeout)
	}
	if s.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", s.PollInterval)
	}
	if s.IdleThreshold != time.Minute {
		t.Errorf("IdleThreshold = %v, want 1m", s.IdleThreshold)
	}
	if s.RetryOnServerError {
		t.Error("RetryOnServerError should default to false")
	}
	if s.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", s.MaxWorkers)
	}
	if s.ConfigPath != DefaultPath() {
		t.Errorf("ConfigPath = %q, want %q", s.ConfigPath, DefaultPath())
	}
	if s.DownloadDir == "" {
		t.Error("DownloadDir should default to the working directory")
	}
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("CLOUDXFER_TIMEOUT", "8s")
	t.Setenv("CLOUDXFER_CONFIG", "/tmp/cx.ini")
	t.Setenv("CLOUDXFER_RETRY_ON_SERVER_ERROR", "true")
	t.Setenv("CLOUDXFER_LOG_LEVEL", "debug")
	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.Timeout != 8*time.Second {
		t.Errorf("Timeout = %v, want 8s", s.Timeout)
	}
	if s.ConfigPath != "/tmp/cx.ini" {
		t.Errorf("ConfigPath = %q", s.ConfigPath)
	}
	if !s.RetryOnServerError {
		t.Error("RetryOnServerError should be true")
	}
	if s.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", s.LogLevel)
	}
}

func TestLoadSettingsRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"CLOUDXFER_TIMEOUT":     "10h",
		"CLOUDXFER_MAX_WORKERS": "0",
		"CLOUDXFER_LOG_LEVEL":   "loud",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadSettings(); err == nil {
				t.Errorf("LoadSettings() with %s=%s should fail", key, val)
			}
		})
	}
}

func TestLoadSettingsUnparsable(t *testing.T) {
	t.Setenv("CLOUDXFER_POLL_INTERVAL", "soon")
	if _, err := LoadSettings(); err == nil {
		t.Error("expected parse error for bad duration")
	}
}
