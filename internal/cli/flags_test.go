package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCommonFlags(t *testing.T) {
	var flags CommandFlags
	cmd := &cobra.Command{Use: "test"}
	RegisterCommonFlags(cmd, &flags)

	require.NoError(t, cmd.PersistentFlags().Parse([]string{"-o", "json", "--owner", "u1", "-q"}))
	assert.Equal(t, "json", flags.OutputFormat)
	assert.True(t, flags.Quiet)

	opts, err := flags.ToExecutorOptions("/etc/toolhost")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSON, opts.Format)
	assert.Equal(t, "/etc/toolhost", opts.ConfigPath)

	assert.Equal(t, map[string]interface{}{"id": "a", "ownerId": "u1"}, flags.WithOwner(map[string]interface{}{"id": "a"}))
}

func TestToExecutorOptions_InvalidFormat(t *testing.T) {
	flags := CommandFlags{OutputFormat: "xml"}
	_, err := flags.ToExecutorOptions("")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestWithOwner_Unset(t *testing.T) {
	var flags CommandFlags
	assert.Equal(t, map[string]interface{}{}, flags.WithOwner(nil))
}
