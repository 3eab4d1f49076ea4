// Package config handles mesactl configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all mesactl configuration options.
type Config struct {
	// MESA installation
	MesaDir string `env:"MESA_DIR"`

	// Work directory layout
	WorkDir      string `env:"WORK_DIR"`
	InlistName   string `env:"INLIST_NAME"`
	RestartPhoto string `env:"RESTART_PHOTO"`
	LogsDir      string `env:"LOGS_DIR"`
	PhotosDir    string `env:"PHOTOS_DIR"`
	PngDir       string `env:"PNG_DIR"`

	// Executables, relative to the work directory
	StarCmd    string `env:"STAR_CMD"`
	RestartCmd string `env:"RESTART_CMD"`
	MakeCmd    string `env:"MAKE_CMD"`

	// Run behaviour
	Pgstar    bool   `env:"PGSTAR"`
	Pause     bool   `env:"PAUSE"`
	QuietRuns bool   `env:"QUIET_RUNS"`
	RunLogDir string `env:"RUN_LOG_DIR"`

	// Extra failure patterns, "regex:category,..."
	FailurePatterns string `env:"FAILURE_PATTERNS"`

	// Monitoring
	MonitorEnabled bool          `env:"MONITOR_ENABLED"`
	EventsFile     string        `env:"EVENTS_FILE"`
	StatusFile     string        `env:"STATUS_FILE"`
	HistoryFile    string        `env:"HISTORY_FILE"`
	HistoryMax     int           `env:"HISTORY_MAX"`
	Hooks          string        `env:"HOOKS"`
	HookTimeout    time.Duration `env:"HOOK_TIMEOUT"`

	// Logging
	LogLevel string `env:"LOG_LEVEL"`

	// Internal tracking
	configPath string
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkDir:      ".",
		InlistName:   "inlist",
		RestartPhoto: "restart_photo",
		LogsDir:      "LOGS",
		PhotosDir:    "photos",
		PngDir:       "png",

		StarCmd:    "./star",
		RestartCmd: "./re",
		MakeCmd:    "./mk",

		Pgstar: true,
		Pause:  true,

		MonitorEnabled: true,
		HistoryFile:    ".mesactl/history.json",
		HistoryMax:     500,
		HookTimeout:    30 * time.Second,

		LogLevel: "info",
	}
}

// Load loads configuration from the given path, falling back to defaults.
// If path is empty, it searches for mesactl.config in common locations.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		searchPaths := []string{
			"mesactl.config",
			filepath.Join(os.Getenv("HOME"), ".config/mesactl/mesactl.config"),
		}
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
		cfg.configPath = path
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a bash-style KEY=VALUE file.
func (c *Config) loadFromFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	if err := env.ParseWithOptions(c, env.Options{Environment: values}); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays configuration from environment variables.
func (c *Config) loadFromEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors, resetting invalid values.
func (c *Config) Validate() []string {
	var warnings []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if !validLevels[c.LogLevel] {
		warnings = append(warnings, fmt.Sprintf("LOG_LEVEL '%s' invalid, using 'info'", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.WorkDir == "" {
		warnings = append(warnings, "WORK_DIR empty, using '.'")
		c.WorkDir = "."
	}

	if c.InlistName == "" {
		warnings = append(warnings, "INLIST_NAME empty, using 'inlist'")
		c.InlistName = "inlist"
	}

	if c.HistoryMax < 0 {
		warnings = append(warnings, fmt.Sprintf("HISTORY_MAX %d invalid, keeping all runs", c.HistoryMax))
		c.HistoryMax = 0
	}

	if c.HookTimeout <= 0 {
		warnings = append(warnings, "HOOK_TIMEOUT must be positive, using 30s")
		c.HookTimeout = 30 * time.Second
	}

	if c.MesaDir == "" {
		warnings = append(warnings, "MESA_DIR is not set; parameter defaults are unavailable")
	}

	return warnings
}

// Path returns the path the config was loaded from, if any.
func (c *Config) Path() string {
	return c.configPath
}

// WorkPath joins name onto the work directory.
func (c *Config) WorkPath(name string) string {
	return filepath.Join(c.WorkDir, name)
}
