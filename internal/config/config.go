// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath         string
	LogLevel             string
	SweepIntervalMinutes int
	FetchWorkers         int
	SourcesFile          string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:         envOrDefault("DATABASE_PATH", "./data/rsshub.db"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		SweepIntervalMinutes: 60,
		FetchWorkers:         10,
		SourcesFile:          os.Getenv("SOURCES_FILE"),
	}

	if raw := os.Getenv("FETCH_INTERVAL_MINUTES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FETCH_INTERVAL_MINUTES %q", raw)
		}
		cfg.SweepIntervalMinutes = n
	}

	if raw := os.Getenv("FETCH_WORKERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FETCH_WORKERS %q", raw)
		}
		cfg.FetchWorkers = n
	}

	return cfg, nil
}

// SeedSource is one feed source declared in the YAML seed file.
type SeedSource struct {
	Name             string `yaml:"name"`
	URL              string `yaml:"url"`
	Description      string `yaml:"description"`
	FrequencyMinutes int    `yaml:"frequency_minutes"`
}

type seedFile struct {
	Sources []SeedSource `yaml:"sources"`
}

// LoadSeedSources reads the YAML source list. Sources without a
// frequency default to 60 minutes.
func LoadSeedSources(path string) ([]SeedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var file seedFile
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}

	for i := range file.Sources {
		s := &file.Sources[i]
		if s.URL == "" {
			return nil, fmt.Errorf("source %d: url is required", i)
		}
		if s.Name == "" {
			s.Name = s.URL
		}
		if s.FrequencyMinutes <= 0 {
			s.FrequencyMinutes = 60
		}
	}
	return file.Sources, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
