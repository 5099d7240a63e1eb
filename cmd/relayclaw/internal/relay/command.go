package relay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/gateway"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/flow"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/metrics"
	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/channels"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/providers"
	"github.com/tinyland-inc/relayclaw/pkg/sessions"
	"github.com/tinyland-inc/relayclaw/pkg/turns"
)

func NewRelayCommand() *cobra.Command {
	var requester string
	var target string
	var debug bool

	cmd := &cobra.Command{
		Use:   "relay <task text>",
		Short: "Dispatch a task from one agent session to another and relay the result",
		Args:  cobra.MinimumNArgs(1),
		Example: `  relayclaw relay --requester agent:main:cli --target agent:research:cli "Summarize the deploy log"
  relayclaw relay --target agent:qa:cli "Re-run the flaky suite"`,
		RunE: func(_ *cobra.Command, args []string) error {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
			return relayCmd(requester, target, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&requester, "requester", "", "Requesting session key (defaults to agent:main:cli)")
	cmd.Flags().StringVar(&target, "target", "", "Target session key (required)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func relayCmd(requester, target, taskText string) error {
	if requester == "" {
		requester = "agent:main:cli"
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	provider, modelID, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("error creating provider: %w", err)
	}
	if modelID != "" {
		cfg.Agents.Defaults.ModelName = modelID
	}

	storePath := internal.SessionsFilePath(cfg)
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return fmt.Errorf("error creating state dir: %w", err)
	}
	store := sessions.NewStore()

	runner := turns.NewRunner(
		store,
		storePath,
		provider,
		cfg.Agents.Defaults.ModelName,
		cfg.Agents.Defaults.MaxTokens,
		cfg.Agents.Defaults.Temperature,
	)

	opts, err := gateway.RelayOptions(cfg, storePath)
	if err != nil {
		return fmt.Errorf("error in a2a config: %w", err)
	}

	// One-shot invocation: the channel adapters are constructed but their
	// receive side never starts, so announcements resolve against whatever
	// routing the sessions file already records.
	manager := channels.NewManager(cfg, bus.NewMessageBus())
	announcer := channels.NewAnnouncer(store, storePath, manager)
	orch := flow.NewOrchestrator(store, runner, announcer, metrics.NewCollector(), opts)
	orch.SetWarnFunc(func(sessionKey, message string) {
		fmt.Fprintf(os.Stderr, "⚠ %s: %s\n", sessionKey, message)
	})

	ctx := context.Background()
	runID := uuid.NewString()
	runner.Dispatch(ctx, target, runID, taskText)

	outcome := orch.Run(ctx, flow.Task{
		RunID:               runID,
		RequesterSessionKey: requester,
		TargetSessionKey:    target,
		TaskText:            taskText,
	})

	fmt.Printf("Relay finished: announced=%t recorded=%t\n", outcome.Announced, outcome.Recorded)
	if outcome.Recorded {
		fmt.Printf("Result stored in the inbox of %s (run %s)\n", requester, runID)
	}
	return nil
}
