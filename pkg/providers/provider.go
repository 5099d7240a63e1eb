// Package providers abstracts the LLM backends a relay turn can run on.
package providers

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/relayclaw/pkg/config"
)

// Message is one chat turn in provider-neutral form.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// UsageInfo reports token accounting for one call.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is the provider-neutral result of one chat call.
type LLMResponse struct {
	Content      string
	FinishReason string // "stop" | "length"
	Usage        *UsageInfo
}

// Provider is a chat-capable LLM backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message, model string, options map[string]any) (*LLMResponse, error)
	GetDefaultModel() string
}

// CreateProvider builds the configured provider and returns it with the
// resolved model identifier.
func CreateProvider(cfg *config.Config) (Provider, string, error) {
	var p Provider
	switch cfg.Agents.Defaults.Provider {
	case "anthropic", "":
		if cfg.Providers.Anthropic.APIKey == "" {
			return nil, "", fmt.Errorf("anthropic provider selected but no api_key configured")
		}
		p = NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.APIBase)
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, "", fmt.Errorf("openai provider selected but no api_key configured")
		}
		p = NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase)
	default:
		return nil, "", fmt.Errorf("unknown provider %q", cfg.Agents.Defaults.Provider)
	}

	model := cfg.Agents.Defaults.ModelName
	if model == "" {
		model = p.GetDefaultModel()
	}
	return p, model, nil
}
