package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/gateway"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/inboxcmd"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/relay"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/version"
)

func NewRelayclawCommand() *cobra.Command {
	short := fmt.Sprintf("%s relayclaw - Agent-to-Agent Relay v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "relayclaw",
		Short:   short,
		Example: "relayclaw gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		relay.NewRelayCommand(),
		inboxcmd.NewInboxCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewRelayclawCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
