// Package config loads and validates hivemind configuration from YAML.
// Values referencing ${ENV_VAR} placeholders are expanded from the
// environment before parsing so secrets never live in the file itself.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all hivemind configuration.
type Config struct {
	// Core settings
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"` // base dir for logs and local state

	// Coordination protocol tuning
	Coordination CoordinationConfig `yaml:"coordination"`

	// LLM configuration (process-wide default; profiles may override)
	LLM LLMConfig `yaml:"llm"`

	// Orchestrator identity
	Orchestrator AgentIdentity `yaml:"orchestrator"`

	// Specialist profiles, in priority order (first wins ties)
	Specialists []SpecialistProfile `yaml:"specialists"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns a configuration with sensible defaults, including
// the built-in specialist trio.
func DefaultConfig() *Config {
	return &Config{
		Name:         "hivemind",
		Workspace:    ".",
		Coordination: DefaultCoordinationConfig(),
		LLM: LLMConfig{
			Provider:      "none",
			Model:         "gemini-2.0-flash",
			Timeout:       "30s",
			MaxConcurrent: 2,
			MaxRetries:    3,
		},
		Orchestrator: AgentIdentity{
			Name:   "Orchestrator",
			UserID: "UORCH",
			BotID:  "BORCH",
		},
		Specialists: DefaultSpecialistProfiles(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// an unreadable or invalid file is an error. ${ENV_VAR} placeholders are
// expanded first and every missing variable is reported at once.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded, err := ExpandEnv(data)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
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

// applyEnvOverrides applies environment variable overrides for secrets.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" || c.LLM.Provider == "none" {
			c.LLM.Provider = "gemini"
		}
	}
	if key := os.Getenv("XAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "xai"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if ch := os.Getenv("HIVEMIND_COORDINATION_CHANNEL"); ch != "" {
		c.Coordination.Channel = ch
	}
}

// LogsDir returns the directory categorized logs are written to.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Workspace, ".hivemind", "logs")
}

// Validate checks the configuration for inconsistencies a typo would cause.
func (c *Config) Validate() error {
	if c.Coordination.Channel == "" {
		return fmt.Errorf("coordination.channel is required")
	}
	if err := c.Coordination.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if c.Orchestrator.UserID == "" || c.Orchestrator.BotID == "" {
		return fmt.Errorf("orchestrator identity requires user_id and bot_id")
	}
	if len(c.Specialists) == 0 {
		return fmt.Errorf("at least one specialist profile is required")
	}

	seen := make(map[string]bool, len(c.Specialists))
	for i := range c.Specialists {
		p := &c.Specialists[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("specialist %d: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate specialist name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
