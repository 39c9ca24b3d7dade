package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"hivemind/internal/config"
	"hivemind/internal/logging"
)

// =============================================================================
// OPENAI-COMPATIBLE CLIENT (OpenAI, xAI)
// =============================================================================

const xaiBaseURL = "https://api.x.ai/v1"

// CompatClient implements Client on any OpenAI-compatible chat completions
// endpoint. xAI's Grok API speaks the same protocol on a different base URL.
type CompatClient struct {
	client   openai.Client
	provider string
	model    string
	timeout  time.Duration
}

// Compile-time assertion that CompatClient implements Client
var _ Client = (*CompatClient)(nil)

// NewCompatClient creates a client for the "openai" or "xai" provider.
func NewCompatClient(cfg config.LLMConfig) *CompatClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}

	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.Provider == "xai" {
		baseURL = xaiBaseURL
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		switch cfg.Provider {
		case "xai":
			model = "grok-2-latest"
		default:
			model = "gpt-4o-mini"
		}
	}

	return &CompatClient{
		client:   openai.NewClient(opts...),
		provider: cfg.Provider,
		model:    model,
		timeout:  cfg.GetTimeout(),
	}
}

// Complete sends a prompt and returns the completion.
func (c *CompatClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *CompatClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()

	var messages []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		logging.LLMError("[%s] completion failed after %v: %v", c.provider, time.Since(start), err)
		return "", fmt.Errorf("%s completion failed: %w", c.provider, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	logging.LLM("[%s] completed in %v model=%s response_len=%d", c.provider, time.Since(start), c.model, len(response))
	return response, nil
}

// Model returns the configured model name.
func (c *CompatClient) Model() string {
	return c.model
}
