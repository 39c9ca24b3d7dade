// Package llm provides language-model clients behind a minimal completion
// interface, plus a scheduler that bounds concurrent API calls across all
// specialists in the process.
package llm

import (
	"context"
	"fmt"

	"hivemind/internal/config"
)

// Client is the minimal interface specialists use to call a model.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New creates a client for an enabled provider. Callers must check
// cfg.Enabled() first; provider "none" is not a client.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	case "xai", "openai":
		return NewCompatClient(cfg), nil
	default:
		return nil, fmt.Errorf("no client for llm provider %q", cfg.Provider)
	}
}
