package enrichaf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default configuration values, matching the documented service
// defaults.
const (
	DefaultCleanupDays = 7
	DefaultCleanupTime = "02:00"
	DefaultBaseURL     = "http://localhost:8000"
	DefaultImagesDir   = "static/images"
)

// Config holds the settings consumed by the enrichment pipeline and
// the retention sweeper.
type Config struct {
	// BaseURL is the public base URL prepended to image links
	// (default: http://localhost:8000).
	BaseURL string `yaml:"base_url"`

	// ImagesDir is the root directory for per-document image folders
	// (default: static/images).
	ImagesDir string `yaml:"images_dir"`

	// CleanupDays is the retention age in days for document folders
	// (default: 7).
	CleanupDays int `yaml:"cleanup_days"`

	// CleanupTime is the daily sweep time in 24-hour HH:MM format
	// (default: 02:00). An invalid value falls back to the default
	// with a logged warning.
	CleanupTime string `yaml:"cleanup_time"`
}

// withDefaults fills zero-valued fields with the documented defaults.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ImagesDir == "" {
		c.ImagesDir = DefaultImagesDir
	}
	// A zero or negative retention would make every folder expire on
	// the next sweep, so both fall back to the default.
	if c.CleanupDays <= 0 {
		c.CleanupDays = DefaultCleanupDays
	}
	if c.CleanupTime == "" {
		c.CleanupTime = DefaultCleanupTime
	}
	return c
}

// LoadConfig reads a YAML config file, applies environment overrides
// (IMAGE_CLEANUP_DAYS, IMAGE_CLEANUP_TIME, IMAGES_DIR, BASE_URL), and
// fills defaults. A missing file is not an error; the defaults are
// returned.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("IMAGES_DIR"); v != "" {
		cfg.ImagesDir = v
	}
	if v := os.Getenv("IMAGE_CLEANUP_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.CleanupDays = days
		}
	}
	if v := os.Getenv("IMAGE_CLEANUP_TIME"); v != "" {
		cfg.CleanupTime = v
	}

	return cfg.withDefaults(), nil
}

// parseCleanupTime validates a 24-hour HH:MM string and returns the
// hour and minute. Invalid input returns an error so callers can fall
// back to DefaultCleanupTime.
func parseCleanupTime(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("cleanup time %q: format must be HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup time %q: %w", s, err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("cleanup time %q: values out of range", s)
	}
	return hour, minute, nil
}
