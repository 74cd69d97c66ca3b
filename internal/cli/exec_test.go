package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		assert.True(t, hasCommand(t, "exec"), "exec command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"exec", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "JSON")
		assert.Contains(t, helpText, "--stdin")
		assert.Contains(t, helpText, "--metrics-addr")
	})

	t.Run("flag defaults", func(t *testing.T) {
		timeoutFlag := execCmd.Flags().Lookup("timeout")
		require.NotNil(t, timeoutFlag)
		assert.Equal(t, "0s", timeoutFlag.DefValue)

		stdinFlag := execCmd.Flags().Lookup("stdin")
		require.NotNil(t, stdinFlag)
		assert.Equal(t, "false", stdinFlag.DefValue)

		metricsFlag := execCmd.Flags().Lookup("metrics-addr")
		require.NotNil(t, metricsFlag)
		assert.Equal(t, "", metricsFlag.DefValue)
	})
}
