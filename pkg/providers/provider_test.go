package providers

import (
	"testing"

	"github.com/tinyland-inc/relayclaw/pkg/config"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "https://api.example.com"},
		{"   ", "https://api.example.com"},
		{"https://proxy.local", "https://proxy.local"},
		{"https://proxy.local/", "https://proxy.local"},
		{"https://proxy.local/v1", "https://proxy.local"},
		{"https://proxy.local/v1/", "https://proxy.local"},
	}
	for _, tc := range cases {
		if got := normalizeBaseURL(tc.in, "https://api.example.com"); got != tc.want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateProvider_AnthropicDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "sk-test"

	p, model, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Errorf("expected AnthropicProvider, got %T", p)
	}
	if model != p.GetDefaultModel() {
		t.Errorf("empty model_name must resolve to the provider default, got %q", model)
	}
}

func TestCreateProvider_OpenAI(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Provider = "openai"
	cfg.Agents.Defaults.ModelName = "gpt-4.1"
	cfg.Providers.OpenAI.APIKey = "sk-test"

	p, model, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("expected OpenAIProvider, got %T", p)
	}
	if model != "gpt-4.1" {
		t.Errorf("configured model must win, got %q", model)
	}
}

func TestCreateProvider_MissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, _, err := CreateProvider(cfg); err == nil {
		t.Error("expected error with no api key configured")
	}
}

func TestCreateProvider_UnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Provider = "abacus"
	if _, _, err := CreateProvider(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}
