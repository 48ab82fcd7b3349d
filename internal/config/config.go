package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all chunker configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Learning policy consumed by the chunker
	Learning LearningConfig `yaml:"learning"`

	// Explanation recording and archive
	Explain ExplainConfig `yaml:"explain"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Scenario runner defaults
	Scenario ScenarioConfig `yaml:"scenario"`
}

// ExplainConfig configures the explanation recorder.
type ExplainConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ArchivePath string `yaml:"archive_path"` // SQLite file; empty keeps explanations in memory only
	Facts       bool   `yaml:"facts"`        // project filed chunks into Mangle facts
}

// ScenarioConfig configures the scenario runner.
type ScenarioConfig struct {
	Parallelism int  `yaml:"parallelism"`
	PrintRules  bool `yaml:"print_rules"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "chunker",
		Version:  "0.3.0",
		Learning: DefaultLearningConfig(),
		Explain: ExplainConfig{
			Enabled: true,
			Facts:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Scenario: ScenarioConfig{
			Parallelism: 4,
			PrintRules:  true,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("CHUNKER_LEARNING"); mode != "" {
		c.Learning.Mode = LearningMode(strings.ToLower(mode))
	}
	if v := os.Getenv("CHUNKER_MAX_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Learning.MaxChunks = n
		}
	}
	if v := os.Getenv("CHUNKER_EXPLAIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Explain.Enabled = b
		}
	}
	if lvl := os.Getenv("CHUNKER_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	// Archive path from environment
	if path := os.Getenv("CHUNKER_ARCHIVE"); path != "" {
		c.Explain.ArchivePath = path
	}
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Learning.Validate(); err != nil {
		return err
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	if c.Scenario.Parallelism < 1 {
		return fmt.Errorf("scenario parallelism must be >= 1")
	}
	return nil
}
