package channels

import (
	"context"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// Manager owns the configured channels and pumps outbound bus traffic to
// them.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

// NewManager constructs every enabled channel from the configuration. A
// channel that fails to construct is logged and skipped rather than taking
// the gateway down; announce delivery to it will simply find no channel.
func NewManager(cfg *config.Config, b *bus.MessageBus) *Manager {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Channels.Slack.Enabled {
		if ch, err := NewSlackChannel(cfg.Channels.Slack, b); err != nil {
			logger.ErrorCF("channels", "Slack channel unavailable", map[string]any{"error": err.Error()})
		} else {
			m.channels[ch.Name()] = ch
		}
	}
	if cfg.Channels.Telegram.Enabled {
		if ch, err := NewTelegramChannel(cfg.Channels.Telegram, b); err != nil {
			logger.ErrorCF("channels", "Telegram channel unavailable", map[string]any{"error": err.Error()})
		} else {
			m.channels[ch.Name()] = ch
		}
	}
	if cfg.Channels.Discord.Enabled {
		if ch, err := NewDiscordChannel(cfg.Channels.Discord, b); err != nil {
			logger.ErrorCF("channels", "Discord channel unavailable", map[string]any{"error": err.Error()})
		} else {
			m.channels[ch.Name()] = ch
		}
	}

	return m
}

// Get returns the named channel if it was constructed.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// Names lists the constructed channels.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// StartAll starts every channel. A channel that fails to start is removed so
// later sends fail fast with "no channel" instead of hitting a dead client.
func (m *Manager) StartAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Channel failed to start", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			delete(m.channels, name)
		}
	}
}

// StopAll stops every running channel.
func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel failed to stop", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

// Run consumes the outbound side of the bus until the context ends,
// dispatching each message to its channel. Send failures are logged; the bus
// pump never stops on one bad message.
func (m *Manager) Run(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := m.channels[msg.Channel]
		if !found {
			logger.WarnCF("channels", "Dropping outbound message for unknown channel", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
			})
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Outbound send failed", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}
