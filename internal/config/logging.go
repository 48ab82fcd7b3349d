package config

// LoggingConfig selects what the zap loggers under internal/logging emit.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"

	// DebugMode turns on the per-category debug streams. Categories missing
	// from the map stay on.
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// JSON reports whether records should be encoded as JSON.
func (c *LoggingConfig) JSON() bool { return c.Format == "json" }
