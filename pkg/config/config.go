// Package config loads and validates the relayclaw configuration.
//
// Configuration lives in a single JSON file (~/.relayclaw/config.json) and
// every field can be overridden through RELAYCLAW_* environment variables.
// Mode strings (delivery, naming, ack) are closed enumerations validated at
// load time; a bad mode fails the load rather than surfacing later per call.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow/deny lists can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Session   SessionConfig   `json:"session"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	A2A       A2AConfig       `json:"a2a"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

type AgentDefaults struct {
	Provider    string   `env:"RELAYCLAW_AGENTS_DEFAULTS_PROVIDER"    json:"provider"`
	ModelName   string   `env:"RELAYCLAW_AGENTS_DEFAULTS_MODEL_NAME"  json:"model_name,omitempty"`
	MaxTokens   int      `env:"RELAYCLAW_AGENTS_DEFAULTS_MAX_TOKENS"  json:"max_tokens"`
	Temperature *float64 `env:"RELAYCLAW_AGENTS_DEFAULTS_TEMPERATURE" json:"temperature,omitempty"`
}

type SessionConfig struct {
	StateDir string `env:"RELAYCLAW_SESSION_STATE_DIR" json:"state_dir"`
}

// StatePath returns the directory holding the persisted session records,
// with ~ expanded.
func (s SessionConfig) StatePath() string {
	return expandHome(s.StateDir)
}

type ChannelsConfig struct {
	Slack    SlackConfig    `json:"slack"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type SlackConfig struct {
	Enabled   bool                `env:"RELAYCLAW_CHANNELS_SLACK_ENABLED"    json:"enabled"`
	BotToken  string              `env:"RELAYCLAW_CHANNELS_SLACK_BOT_TOKEN"  json:"bot_token"`
	AllowFrom FlexibleStringSlice `env:"RELAYCLAW_CHANNELS_SLACK_ALLOW_FROM" json:"allow_from"`
}

type TelegramConfig struct {
	Enabled   bool                `env:"RELAYCLAW_CHANNELS_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"RELAYCLAW_CHANNELS_TELEGRAM_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"RELAYCLAW_CHANNELS_TELEGRAM_ALLOW_FROM" json:"allow_from"`
}

type DiscordConfig struct {
	Enabled   bool                `env:"RELAYCLAW_CHANNELS_DISCORD_ENABLED"    json:"enabled"`
	Token     string              `env:"RELAYCLAW_CHANNELS_DISCORD_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"RELAYCLAW_CHANNELS_DISCORD_ALLOW_FROM" json:"allow_from"`
}

type ProvidersConfig struct {
	Anthropic ProviderConfig `envPrefix:"RELAYCLAW_PROVIDERS_ANTHROPIC_" json:"anthropic"`
	OpenAI    ProviderConfig `envPrefix:"RELAYCLAW_PROVIDERS_OPENAI_"    json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `env:"API_KEY"  json:"api_key"`
	APIBase string `env:"API_BASE" json:"api_base"`
}

// A2AConfig holds the agent-to-agent relay options. The string mode fields
// are parsed into their typed forms by the a2a packages after Validate has
// confirmed them.
type A2AConfig struct {
	DeliveryMode           string              `env:"RELAYCLAW_A2A_DELIVERY_MODE"            json:"delivery_mode"`
	NamingMode             string              `env:"RELAYCLAW_A2A_NAMING_MODE"              json:"naming_mode"`
	InboxAckMode           string              `env:"RELAYCLAW_A2A_INBOX_ACK_MODE"           json:"inbox_ack_mode"`
	InboxRetentionDays     int                 `env:"RELAYCLAW_A2A_INBOX_RETENTION_DAYS"     json:"inbox_retention_days"` // 0 = never prune
	Allow                  FlexibleStringSlice `env:"RELAYCLAW_A2A_ALLOW"                    json:"allow,omitempty"`
	Deny                   FlexibleStringSlice `env:"RELAYCLAW_A2A_DENY"                     json:"deny,omitempty"`
	MaxPingPongTurns       int                 `env:"RELAYCLAW_A2A_MAX_PING_PONG_TURNS"      json:"max_ping_pong_turns"`
	PingPongDelayMs        int                 `env:"RELAYCLAW_A2A_PING_PONG_DELAY_MS"       json:"ping_pong_delay_ms"`
	AnnounceTimeoutSeconds int                 `env:"RELAYCLAW_A2A_ANNOUNCE_TIMEOUT_SECONDS" json:"announce_timeout_seconds"`
	InboxMaxEvents         int                 `env:"RELAYCLAW_A2A_INBOX_MAX_EVENTS"         json:"inbox_max_events"`
	InboxMaxChars          int                 `env:"RELAYCLAW_A2A_INBOX_MAX_CHARS"          json:"inbox_max_chars"`
	InboxMaxAgeMinutes     int                 `env:"RELAYCLAW_A2A_INBOX_MAX_AGE_MINUTES"    json:"inbox_max_age_minutes"`
}

// DefaultConfig returns the built-in configuration template.
func DefaultConfig() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Provider:  "anthropic",
				MaxTokens: 4096,
			},
		},
		Session: SessionConfig{
			StateDir: "~/.relayclaw/state",
		},
		A2A: A2AConfig{
			DeliveryMode:           "inject",
			NamingMode:             "preferred",
			InboxAckMode:           "mark",
			InboxRetentionDays:     0,
			MaxPingPongTurns:       0,
			PingPongDelayMs:        1000,
			AnnounceTimeoutSeconds: 60,
			InboxMaxEvents:         3,
			InboxMaxChars:          500,
			InboxMaxAgeMinutes:     10,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the closed-enum mode fields and numeric ranges.
func (c *Config) Validate() error {
	switch c.A2A.DeliveryMode {
	case "inject", "inbox":
	default:
		return fmt.Errorf("a2a.delivery_mode: unknown mode %q (want inject or inbox)", c.A2A.DeliveryMode)
	}
	switch c.A2A.NamingMode {
	case "legacy", "preferred":
	default:
		return fmt.Errorf("a2a.naming_mode: unknown mode %q (want legacy or preferred)", c.A2A.NamingMode)
	}
	switch c.A2A.InboxAckMode {
	case "mark", "clear":
	default:
		return fmt.Errorf("a2a.inbox_ack_mode: unknown mode %q (want mark or clear)", c.A2A.InboxAckMode)
	}
	if c.A2A.InboxRetentionDays < 0 {
		return fmt.Errorf("a2a.inbox_retention_days: must be >= 0, got %d", c.A2A.InboxRetentionDays)
	}
	if c.A2A.MaxPingPongTurns < 0 {
		return fmt.Errorf("a2a.max_ping_pong_turns: must be >= 0, got %d", c.A2A.MaxPingPongTurns)
	}
	return nil
}

// GetAPIKey returns the first configured provider API key.
func (c *Config) GetAPIKey() string {
	if c.Providers.Anthropic.APIKey != "" {
		return c.Providers.Anthropic.APIKey
	}
	return c.Providers.OpenAI.APIKey
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
