package config

import "fmt"

// LoggingConfig controls the category log files under the workspace.
type LoggingConfig struct {
	// Level is the minimum severity written: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format selects the line format: "text" or "json".
	Format string `yaml:"format"`

	// DebugMode enables debug-level lines and the coordination audit trail.
	DebugMode bool `yaml:"debug_mode"`

	// Categories limits logging to the named categories. Empty means all.
	Categories []string `yaml:"categories"`
}

var validLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks level and format values.
func (c *LoggingConfig) Validate() error {
	if !validLogLevels[c.Level] {
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

// GetLevel returns the configured level with the default applied.
func (c *LoggingConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}
