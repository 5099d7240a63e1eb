package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/display"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/flow"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/inbox"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/metrics"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/policy"
	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/channels"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/providers"
	"github.com/tinyland-inc/relayclaw/pkg/sessions"
	"github.com/tinyland-inc/relayclaw/pkg/turns"
)

func gatewayCmd(debug, jsonLogs bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}
	if jsonLogs {
		logger.SetOutput(os.Stderr, true)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	provider, modelID, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("error creating provider: %w", err)
	}

	// Use the resolved model ID from provider creation
	if modelID != "" {
		cfg.Agents.Defaults.ModelName = modelID
	}

	storePath := internal.SessionsFilePath(cfg)
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return fmt.Errorf("error creating state dir: %w", err)
	}
	store := sessions.NewStore()

	msgBus := bus.NewMessageBus()
	channelManager := channels.NewManager(cfg, msgBus)

	runner := turns.NewRunner(
		store,
		storePath,
		provider,
		cfg.Agents.Defaults.ModelName,
		cfg.Agents.Defaults.MaxTokens,
		cfg.Agents.Defaults.Temperature,
	)

	opts, err := RelayOptions(cfg, storePath)
	if err != nil {
		return fmt.Errorf("error in a2a config: %w", err)
	}

	announcer := channels.NewAnnouncer(store, storePath, channelManager)
	collector := metrics.NewCollector()
	orch := flow.NewOrchestrator(store, runner, announcer, collector, opts)
	orch.SetWarnFunc(warnFunc(store, storePath, msgBus))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channelManager.StartAll(ctx)
	go channelManager.Run(ctx)
	go runDispatcher(ctx, msgBus, store, storePath, runner, orch)

	enabled := channelManager.Names()
	if len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("⚠ Warning: No channels enabled")
	}

	logger.InfoCF("gateway", "Gateway started", map[string]any{
		"model":    cfg.Agents.Defaults.ModelName,
		"channels": enabled,
		"delivery": cfg.A2A.DeliveryMode,
	})
	fmt.Println("✓ Gateway started")
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	channelManager.StopAll(context.Background())
	msgBus.Close()
	fmt.Println("✓ Gateway stopped")

	return nil
}

// RelayOptions parses the string-mode relay configuration into its typed
// form. Validate has already constrained the enums, but parsing still fails
// closed on anything unexpected.
func RelayOptions(cfg *config.Config, storePath string) (flow.Options, error) {
	opts := flow.DefaultOptions(storePath)

	deliveryMode, err := policy.ParseDeliveryMode(cfg.A2A.DeliveryMode)
	if err != nil {
		return opts, err
	}
	namingMode, err := display.ParseNamingMode(cfg.A2A.NamingMode)
	if err != nil {
		return opts, err
	}
	ackMode, err := inbox.ParseAckMode(cfg.A2A.InboxAckMode)
	if err != nil {
		return opts, err
	}

	opts.Policy = policy.Policy{
		Delivery: deliveryMode,
		Allow:    cfg.A2A.Allow,
		Deny:     cfg.A2A.Deny,
	}
	opts.Naming = namingMode
	opts.Ack = ackMode
	opts.RetentionDays = cfg.A2A.InboxRetentionDays
	opts.MaxPingPong = cfg.A2A.MaxPingPongTurns
	if cfg.A2A.PingPongDelayMs > 0 {
		opts.PingPongDelay = time.Duration(cfg.A2A.PingPongDelayMs) * time.Millisecond
	}
	if cfg.A2A.AnnounceTimeoutSeconds > 0 {
		opts.AnnounceTimeout = time.Duration(cfg.A2A.AnnounceTimeoutSeconds) * time.Second
	}
	if cfg.A2A.InboxMaxEvents > 0 {
		opts.MaxEvents = cfg.A2A.InboxMaxEvents
	}
	if cfg.A2A.InboxMaxChars > 0 {
		opts.MaxChars = cfg.A2A.InboxMaxChars
	}
	if cfg.A2A.InboxMaxAgeMinutes > 0 {
		opts.MaxAge = time.Duration(cfg.A2A.InboxMaxAgeMinutes) * time.Minute
	}

	return opts, nil
}

// warnFunc surfaces relay warnings into the session's last-known channel
// conversation, when one is recorded.
func warnFunc(store *sessions.Store, storePath string, msgBus *bus.MessageBus) func(sessionKey, message string) {
	return func(sessionKey, message string) {
		entry, ok, err := store.Get(storePath, sessionKey)
		if err != nil || !ok || entry.Channel == "" || entry.To == "" {
			return
		}
		if err := msgBus.PublishOutbound(context.Background(), bus.OutboundMessage{
			Channel:   entry.Channel,
			ChatID:    entry.To,
			AccountID: entry.AccountID,
			Content:   message,
		}); err != nil {
			logger.WarnCF("gateway", "Warning delivery failed", map[string]any{
				"session": sessionKey,
				"error":   err.Error(),
			})
		}
	}
}

// runDispatcher consumes inbound platform messages and runs one agent turn
// per message, injecting any pending relay inbox events first.
func runDispatcher(ctx context.Context, msgBus *bus.MessageBus, store *sessions.Store, storePath string, runner *turns.Runner, orch *flow.Orchestrator) {
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go handleInbound(ctx, msg, msgBus, store, storePath, runner, orch)
	}
}

func handleInbound(ctx context.Context, msg bus.InboundMessage, msgBus *bus.MessageBus, store *sessions.Store, storePath string, runner *turns.Runner, orch *flow.Orchestrator) {
	sessionKey := msg.SessionKey
	if sessionKey == "" {
		sessionKey = fmt.Sprintf("agent:%s:%s", msg.Channel, msg.ChatID)
	}

	// Remember where this session talks so announcements and warnings can
	// route back to the same conversation.
	accountID := msg.Metadata["account_id"]
	if err := store.AtomicUpdate(ctx, storePath, sessionKey, func(e *sessions.Entry) error {
		e.Channel = msg.Channel
		e.To = msg.ChatID
		if accountID != "" {
			e.AccountID = accountID
		}
		return nil
	}); err != nil {
		logger.WarnCF("gateway", "Session routing update failed", map[string]any{
			"session": sessionKey,
			"error":   err.Error(),
		})
	}

	runID := uuid.NewString()
	extra := orch.BeforeTurnHook(ctx, sessionKey, runID)

	reply, err := runner.RunTurn(ctx, flow.TurnRequest{
		SessionKey:        sessionKey,
		Message:           msg.Content,
		ExtraSystemPrompt: extra,
	})
	if err != nil {
		logger.ErrorCF("gateway", "Turn failed", map[string]any{
			"session": sessionKey,
			"error":   err.Error(),
		})
		return
	}
	if reply == "" {
		return
	}

	if err := msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		AccountID: accountID,
		Content:   reply,
	}); err != nil {
		logger.ErrorCF("gateway", "Reply publish failed", map[string]any{
			"session": sessionKey,
			"error":   err.Error(),
		})
	}
}
