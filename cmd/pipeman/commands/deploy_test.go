package commands

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeploy_Flags(t *testing.T) {
	cmd := Deploy()

	require.NotNil(t, cmd)
	assert.Equal(t, "deploy", cmd.Use)

	for _, name := range []string{"arch", "mode", "file", "hosts", "quiet", "resume"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "f", cmd.Flags().Lookup("file").Shorthand)
	assert.Equal(t, "q", cmd.Flags().Lookup("quiet").Shorthand)
}

func TestDeploy_HostsFlag(t *testing.T) {
	cmd := Deploy()
	require.NoError(t, cmd.Flags().Parse([]string{"--hosts", "10.0.0.1,10.0.0.2", "--hosts", "10.0.0.3"}))

	hosts, err := cmd.Flags().GetStringSlice("hosts")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, hosts)
}

func TestDeploy_RequiresArchAndMode(t *testing.T) {
	cmd := Root()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"deploy", "--mode", "all_in_one"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"arch"`)
}

func TestDeploy_RejectsArguments(t *testing.T) {
	cmd := Root()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"deploy", "--arch", "amd64", "--mode", "all_in_one", "extra"})

	assert.Error(t, cmd.Execute())
}
