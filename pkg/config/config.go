// Package config stores user preferences for playback.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Tick source kinds
const (
	TickerPrecise = "precise"
	TickerRegular = "regular"
)

// Config is the main configuration structure
type Config struct {
	// Output selects the MIDI port by number or name. "log" prints messages
	// instead of sending them.
	Output         string  `json:"output,omitempty"`
	Speed          float64 `json:"speed"`
	Loop           bool    `json:"loop"`
	Ticker         string  `json:"ticker"`
	IntervalMS     int     `json:"intervalMs"`
	InterruptNotes bool    `json:"interruptNotes"`
	TrackNotes     bool    `json:"trackNotes"`
	ServerPort     int     `json:"serverPort"`
	LogLevel       string  `json:"logLevel"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Speed:          1.0,
		Ticker:         TickerPrecise,
		IntervalMS:     1,
		InterruptNotes: true,
		TrackNotes:     true,
		ServerPort:     8080,
		LogLevel:       "info",
	}
}

// Dir returns the config directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiplayback"), nil
}

// Path returns the full path to config.json
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if there
// is none.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Fields missing from the file keep their
// defaults; a missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %v", c.Speed)
	}
	if c.Ticker != TickerPrecise && c.Ticker != TickerRegular {
		return fmt.Errorf("unknown ticker %q (want %s or %s)", c.Ticker, TickerPrecise, TickerRegular)
	}
	if c.IntervalMS < 1 {
		return fmt.Errorf("interval must be at least 1ms, got %dms", c.IntervalMS)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerPort)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Interval returns the tick interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Level parses LogLevel.
func (c *Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}
