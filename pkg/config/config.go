// Package config loads and saves the YAML application configuration,
// creating a default file on first run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkingHours bounds suggested slots to a daily window. Times are "HH:MM"
// in UTC; an empty window disables the bound.
type WorkingHours struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// Timezone is the IANA timezone assumed for natural-language input
	// when the client does not send its local time (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultDurationMin is the assumed length, in minutes, of events
	// parsed without an end time.
	DefaultDurationMin int `yaml:"default_duration_min" json:"default_duration_min"`

	// BufferMin is the breathing room, in minutes, kept around suggested
	// slots.
	BufferMin int `yaml:"buffer_min" json:"buffer_min"`

	// WorkingHours bounds suggested slots; leave empty for none.
	WorkingHours WorkingHours `yaml:"working_hours" json:"working_hours"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		DBPath:             "momentra.db",
		Timezone:           "UTC",
		DefaultDurationMin: 30,
		BufferMin:          0,
		WorkingHours:       WorkingHours{},
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs from older versions still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DBPath == "" {
		c.DBPath = "momentra.db"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DefaultDurationMin <= 0 {
		c.DefaultDurationMin = 30
	}
	if c.BufferMin < 0 {
		c.BufferMin = 0
	}
}

// Minutes parses an "HH:MM" clock string into minutes from midnight.
// Returns 0 for an empty string.
func Minutes(clock string) (int, error) {
	if clock == "" {
		return 0, nil
	}
	h, m, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}
	return hh*60 + mm, nil
}

// WindowMinutes returns the working-hours window as minutes from midnight.
// Both zero when no window is configured.
func (c *Config) WindowMinutes() (start, end int, err error) {
	if start, err = Minutes(c.WorkingHours.Start); err != nil {
		return 0, 0, err
	}
	if end, err = Minutes(c.WorkingHours.End); err != nil {
		return 0, 0, err
	}
	if end != 0 && end <= start {
		return 0, 0, fmt.Errorf("working hours end %q not after start %q",
			c.WorkingHours.End, c.WorkingHours.Start)
	}
	return start, end, nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written (0600, parent
// directory created as needed) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".momentra-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
