package inboxcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInboxCommand(t *testing.T) {
	cmd := NewInboxCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "inbox", cmd.Use)
	assert.True(t, cmd.HasSubCommands())

	list, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "list <session-key>", list.Use)

	clear, _, err := cmd.Find([]string{"clear"})
	require.NoError(t, err)
	assert.Equal(t, "clear <session-key>", clear.Use)
	assert.NotNil(t, clear.Flags().Lookup("delivered"))
}
