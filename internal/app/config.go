package app

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/specialistvlad/taskgrid/internal/plan"
)

// DefaultSettingsFile is read from the working directory when no settings
// file is named explicitly.
const DefaultSettingsFile = "taskgrid.toml"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	BuildPath    string // hcl file or directory
	SettingsPath string // optional toml file

	WorkerCount     int
	FailurePolicy   string
	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// DefaultConfig returns the configuration used before any settings file,
// environment variable or flag is applied.
func DefaultConfig() Config {
	return Config{
		WorkerCount:   runtime.NumCPU(),
		FailurePolicy: "continue",
		LogFormat:     "json",
		LogLevel:      "info",
	}
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.BuildPath == "" {
		return nil, errors.New("BuildPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	}
	if _, err := plan.ParseFailurePolicy(cfg.FailurePolicy); err != nil {
		return nil, err
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
