package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/relayclaw/pkg/a2a/display"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/inbox"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/policy"
	"github.com/tinyland-inc/relayclaw/pkg/config"
)

func TestNewGatewayCommand(t *testing.T) {
	cmd := NewGatewayCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "gateway", cmd.Use)
	assert.Contains(t, cmd.Aliases, "g")
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("json-logs"))
}

func TestRelayOptions_FromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.A2A.DeliveryMode = "inbox"
	cfg.A2A.NamingMode = "legacy"
	cfg.A2A.InboxAckMode = "clear"
	cfg.A2A.InboxRetentionDays = 14
	cfg.A2A.MaxPingPongTurns = 2
	cfg.A2A.PingPongDelayMs = 250
	cfg.A2A.AnnounceTimeoutSeconds = 30
	cfg.A2A.Allow = config.FlexibleStringSlice{"main"}
	cfg.A2A.Deny = config.FlexibleStringSlice{"rogue"}

	opts, err := RelayOptions(cfg, "/tmp/sessions.json")
	require.NoError(t, err)

	assert.Equal(t, policy.DeliveryInbox, opts.Policy.Delivery)
	assert.Equal(t, []string{"main"}, opts.Policy.Allow)
	assert.Equal(t, []string{"rogue"}, opts.Policy.Deny)
	assert.Equal(t, display.NamingLegacy, opts.Naming)
	assert.Equal(t, inbox.AckClear, opts.Ack)
	assert.Equal(t, 14, opts.RetentionDays)
	assert.Equal(t, 2, opts.MaxPingPong)
	assert.Equal(t, 250*time.Millisecond, opts.PingPongDelay)
	assert.Equal(t, 30*time.Second, opts.AnnounceTimeout)
	assert.Equal(t, "/tmp/sessions.json", opts.StorePath)
}

func TestRelayOptions_BadModeFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.A2A.DeliveryMode = "smoke-signal"

	_, err := RelayOptions(cfg, "/tmp/sessions.json")
	assert.Error(t, err)
}
