package config

import (
	"fmt"
	"time"
)

// LLMConfig configures a language-model client. The zero provider "none"
// disables model calls entirely; specialists then fall back to their
// deterministic paths.
type LLMConfig struct {
	Provider string `yaml:"provider"` // none, gemini, xai, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"` // xai/openai-compatible endpoints only
	Timeout  string `yaml:"timeout"`

	// MaxConcurrent bounds in-flight calls across the whole process.
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `yaml:"max_retries"`
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"none", "gemini", "xai", "openai"}

// Enabled reports whether model calls are configured at all.
func (c *LLMConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != "none"
}

// GetTimeout returns the per-call timeout as a duration.
func (c *LLMConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate checks provider and key consistency.
func (c *LLMConfig) Validate() error {
	valid := false
	for _, p := range ValidProviders {
		if c.Provider == p || c.Provider == "" {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown llm provider %q (valid: %v)", c.Provider, ValidProviders)
	}
	if c.Enabled() && c.APIKey == "" {
		return fmt.Errorf("llm provider %q requires an api_key", c.Provider)
	}
	return nil
}
