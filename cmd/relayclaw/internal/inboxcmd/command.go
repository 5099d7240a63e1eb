package inboxcmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/inbox"
	"github.com/tinyland-inc/relayclaw/pkg/sessions"
)

func NewInboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Inspect and maintain agent relay inboxes",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newClearCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list <session-key>",
		Short:   "List the relay events stored for a session",
		Args:    cobra.ExactArgs(1),
		Example: "  relayclaw inbox list agent:main:cli",
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}

			store := sessions.NewStore()
			entry, ok, err := store.Get(internal.SessionsFilePath(cfg), args[0])
			if err != nil {
				return fmt.Errorf("error reading sessions: %w", err)
			}
			if !ok || len(entry.A2AInbox) == 0 {
				fmt.Println("Inbox is empty")
				return nil
			}

			state, err := inbox.Validate(entry.A2AInbox)
			if err != nil {
				return fmt.Errorf("inbox payload is invalid: %w", err)
			}
			if len(state.Events) == 0 {
				fmt.Println("Inbox is empty")
				return nil
			}

			fmt.Printf("%d event(s):\n", len(state.Events))
			for _, ev := range state.Events {
				status := "pending"
				if ev.Delivered() {
					status = fmt.Sprintf("delivered %s", formatMillis(ev.DeliveredAt))
				}
				from := ev.SourceDisplayKey
				if from == "" {
					from = ev.SourceSessionKey
				}
				fmt.Printf("  %s  [%s]  from %s  %s\n    %s\n",
					formatMillis(ev.CreatedAt), ev.RunID, from, status, ev.ReplyText)
			}
			return nil
		},
	}
}

func newClearCommand() *cobra.Command {
	var delivered bool

	cmd := &cobra.Command{
		Use:     "clear <session-key>",
		Short:   "Remove relay events from a session's inbox",
		Args:    cobra.ExactArgs(1),
		Example: "  relayclaw inbox clear agent:main:cli --delivered",
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}

			store := sessions.NewStore()
			removed := 0
			err = store.AtomicUpdate(context.Background(), internal.SessionsFilePath(cfg), args[0], func(e *sessions.Entry) error {
				if len(e.A2AInbox) == 0 {
					return nil
				}
				state, err := inbox.Validate(e.A2AInbox)
				if err != nil {
					return fmt.Errorf("inbox payload is invalid: %w", err)
				}
				kept := state.Events[:0]
				for _, ev := range state.Events {
					if delivered && !ev.Delivered() {
						kept = append(kept, ev)
						continue
					}
					removed++
				}
				state.Events = kept
				raw, err := state.Marshal()
				if err != nil {
					return err
				}
				e.A2AInbox = raw
				return nil
			})
			if err != nil {
				return fmt.Errorf("error clearing inbox: %w", err)
			}

			fmt.Printf("Removed %d event(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&delivered, "delivered", false, "Only remove events already delivered")

	return cmd
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
