package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Settings mirrors the keys accepted in a taskgrid.toml file. Zero values
// mean "not set" and leave the current configuration untouched.
type Settings struct {
	Workers         int    `toml:"workers"`
	FailurePolicy   string `toml:"failure_policy"`
	LogFormat       string `toml:"log_format"`
	LogLevel        string `toml:"log_level"`
	HealthcheckPort int    `toml:"healthcheck_port"`
}

// LoadSettings decodes a TOML settings file. Unknown keys are rejected.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("settings file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return s, nil
}

// Apply copies every set field onto cfg.
func (s *Settings) Apply(cfg *Config) {
	if s.Workers != 0 {
		cfg.WorkerCount = s.Workers
	}
	if s.FailurePolicy != "" {
		cfg.FailurePolicy = s.FailurePolicy
	}
	if s.LogFormat != "" {
		cfg.LogFormat = strings.ToLower(s.LogFormat)
	}
	if s.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(s.LogLevel)
	}
	if s.HealthcheckPort != 0 {
		cfg.HealthcheckPort = s.HealthcheckPort
	}
}

// ApplySettingsFile loads path and applies it to cfg. When required is
// false a missing file is not an error.
func ApplySettingsFile(cfg *Config, path string, required bool) error {
	if path == "" {
		return nil
	}
	s, err := LoadSettings(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	s.Apply(cfg)
	cfg.SettingsPath = path
	return nil
}

// ApplyEnv applies TASKGRID_* environment variables to cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("TASKGRID_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKGRID_WORKERS %q: %w", v, err)
		}
		cfg.WorkerCount = n
	}
	if v, ok := lookup("TASKGRID_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup("TASKGRID_FAILURE_POLICY"); ok && v != "" {
		cfg.FailurePolicy = v
	}
	return nil
}
