package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelayCommand(t *testing.T) {
	cmd := NewRelayCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "relay <task text>", cmd.Use)
	assert.True(t, cmd.HasExample())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("requester"))
	assert.NotNil(t, cmd.Flags().Lookup("target"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}

func TestNewRelayCommand_RequiresTaskText(t *testing.T) {
	cmd := NewRelayCommand()
	require.NotNil(t, cmd.Args)

	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.NoError(t, cmd.Args(cmd, []string{"do", "the", "thing"}))
}
