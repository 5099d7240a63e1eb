package channels

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// TelegramChannel delivers announcements through the Telegram Bot API.
type TelegramChannel struct {
	*BaseChannel
	bot *telego.Bot
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	bot, err := telego.NewBot(cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", b, cfg.AllowFrom),
		bot:         bot,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.InfoCF("telegram", "Channel started", map[string]any{
		"username": me.Username,
	})
	c.SetRunning(true)
	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	params := &telego.SendMessageParams{Text: msg.Content}
	if id, err := strconv.ParseInt(msg.ChatID, 10, 64); err == nil {
		params.ChatID = telego.ChatID{ID: id}
	} else {
		params.ChatID = telego.ChatID{Username: msg.ChatID}
	}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send to %s: %w", msg.ChatID, err)
	}
	return nil
}
