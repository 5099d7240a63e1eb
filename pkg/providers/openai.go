package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider runs chat turns against the OpenAI Chat Completions API
// (or any compatible endpoint via api_base).
type OpenAIProvider struct {
	client  openai.Client
	baseURL string
}

func NewOpenAIProvider(apiKey, apiBase string) *OpenAIProvider {
	baseURL := apiBase
	if baseURL == "" {
		baseURL = openaiDefaultBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &OpenAIProvider{
		client:  client,
		baseURL: baseURL,
	}
}

func (p *OpenAIProvider) GetDefaultModel() string {
	return "gpt-4.1-mini"
}

func (p *OpenAIProvider) Chat(
	ctx context.Context,
	messages []Message,
	model string,
	options map[string]any,
) (*LLMResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case "user":
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		}
	}

	if mt, ok := options["max_tokens"].(int); ok {
		params.MaxTokens = openai.Int(int64(mt))
	}
	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = openai.Float(temp)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai API call: empty choices")
	}

	choice := resp.Choices[0]
	finishReason := "stop"
	if choice.FinishReason == "length" {
		finishReason = "length"
	}

	return &LLMResponse{
		Content:      choice.Message.Content,
		FinishReason: finishReason,
		Usage: &UsageInfo{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
