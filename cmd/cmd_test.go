// File: cmd/cmd_test.go
package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"send", "dashboard", "history", "diagnose"} {
		assert.True(t, names[want], "subcommand %q must be registered", want)
	}
}

func TestSendCmdFlags(t *testing.T) {
	sendCmd := newSendCmd()

	count := sendCmd.Flags().Lookup("count")
	require.NotNil(t, count)
	assert.Equal(t, "0", count.DefValue)

	delay := sendCmd.Flags().Lookup("delay")
	require.NotNil(t, delay)
	assert.Equal(t, (20 * time.Second).String(), delay.DefValue)

	for _, name := range []string{"sheet-url", "image", "template"} {
		assert.NotNil(t, sendCmd.Flags().Lookup(name), "flag %q must exist", name)
	}
}

func TestDashboardCmdListenDefault(t *testing.T) {
	dashCmd := newDashboardCmd()
	listen := dashCmd.Flags().Lookup("listen")
	require.NotNil(t, listen)
	assert.Equal(t, "127.0.0.1:8077", listen.DefValue)
}

func TestHistoryCmdAcceptsAtMostOneArg(t *testing.T) {
	historyCmd := newHistoryCmd()
	assert.Error(t, historyCmd.Args(historyCmd, []string{"a", "b"}))
	assert.NoError(t, historyCmd.Args(historyCmd, []string{"a"}))
	assert.NoError(t, historyCmd.Args(historyCmd, nil))
}
