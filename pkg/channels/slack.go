package channels

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// SlackChannel delivers announcements through the Slack Web API.
type SlackChannel struct {
	*BaseChannel
	client *slack.Client
}

func NewSlackChannel(cfg config.SlackConfig, b *bus.MessageBus) (*SlackChannel, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", b, cfg.AllowFrom),
		client:      slack.New(cfg.BotToken),
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	resp, err := c.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	logger.InfoCF("slack", "Channel started", map[string]any{
		"team": resp.Team,
		"user": resp.User,
	})
	c.SetRunning(true)
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	_, _, err := c.client.PostMessageContext(ctx, msg.ChatID,
		slack.MsgOptionText(msg.Content, false))
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", msg.ChatID, err)
	}
	return nil
}
