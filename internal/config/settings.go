package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by LoadSettings.
const EnvPrefix = "CLOUDXFER"

// Settings are process-level knobs read from the environment.
type Settings struct {
	ConfigPath         string        `envconfig:"CONFIG"`
	DownloadDir        string        `envconfig:"DOWNLOAD_DIR"`
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"gte=1s,lte=2m"`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"60s" validate:"gte=1s"`
	IdleThreshold      time.Duration `envconfig:"IDLE_THRESHOLD" default:"60s" validate:"gte=1s"`
	RetryOnServerError bool          `envconfig:"RETRY_ON_SERVER_ERROR" default:"false"`
	MaxWorkers         int           `envconfig:"MAX_WORKERS" default:"4" validate:"min=1,max=64"`
	MaxUploadAttempts  int           `envconfig:"MAX_UPLOAD_ATTEMPTS" default:"1000" validate:"min=1"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
}

// LoadSettings reads CLOUDXFER_* variables, applies defaults and validates
// the result.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Settings{}, fmt.Errorf("read environment: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	if s.ConfigPath == "" {
		s.ConfigPath = DefaultPath()
	}
	if s.DownloadDir == "" {
		s.DownloadDir, _ = os.Getwd()
	}
	return s, nil
}
