package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Console configures the operator console and the RFID kiosk.
type Console struct {
	BaseURL        string        `yaml:"base_url"`
	SessionFile    string        `yaml:"session_file"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	StatusReset    time.Duration `yaml:"status_reset"`
	LogLevel       string        `yaml:"log_level"`
}

// DefaultConsolePath is where LoadConsole looks when no path is given.
func DefaultConsolePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "invigilation.yaml"
	}
	return filepath.Join(home, ".invigilation", "config.yaml")
}

// LoadConsole builds the console config from defaults, the YAML file at path
// (when it exists) and INVIGILATION_* environment overrides.
func LoadConsole(path string) (Console, error) {
	cfg := consoleDefaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			raw, err := os.ReadFile(path)
			if err != nil {
				return Console{}, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Console{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.BaseURL = getEnv("INVIGILATION_BASE_URL", cfg.BaseURL)
	cfg.SessionFile = getEnv("INVIGILATION_SESSION_FILE", cfg.SessionFile)
	cfg.RequestTimeout = durationEnv("INVIGILATION_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.PollInterval = durationEnv("INVIGILATION_POLL_INTERVAL", cfg.PollInterval)
	cfg.StatusReset = durationEnv("INVIGILATION_STATUS_RESET", cfg.StatusReset)
	cfg.LogLevel = getEnv("INVIGILATION_LOG_LEVEL", cfg.LogLevel)

	if err := cfg.validate(); err != nil {
		return Console{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func consoleDefaults() Console {
	sessionFile := "session.json"
	if home, err := os.UserHomeDir(); err == nil {
		sessionFile = filepath.Join(home, ".invigilation", "session.json")
	}
	return Console{
		BaseURL:        "http://localhost:5000",
		SessionFile:    sessionFile,
		RequestTimeout: 30 * time.Second,
		PollInterval:   30 * time.Second,
		StatusReset:    3 * time.Second,
		LogLevel:       "warn",
	}
}

func (c Console) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
	}
	if c.SessionFile == "" {
		return errors.New("session_file is required")
	}
	if c.PollInterval <= 0 || c.StatusReset <= 0 || c.RequestTimeout <= 0 {
		return errors.New("poll_interval, status_reset and request_timeout must be positive")
	}
	return nil
}
