package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiNodeTemplate = `[node]

[global]
ntp_server = ntp.ubuntu.com
`

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "multinode.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseNode(t *testing.T) {
	n, err := ParseNode("node2,192.168.10.22,s3cret,ens3,ens4")
	require.NoError(t, err)
	assert.Equal(t, Node{Name: "node2", Address: "192.168.10.22", Password: "s3cret", PrimaryNIC: "ens3", SecondaryNIC: "ens4"}, n)
	assert.Equal(t, "node2,192.168.10.22,s3cret,ens3,ens4", n.String())

	_, err = ParseNode("node2,192.168.10.22")
	assert.Error(t, err)
}

func TestRoundTripThreeHosts(t *testing.T) {
	path := writeTemplate(t, multiNodeTemplate)

	inv, err := Load(path)
	require.NoError(t, err)

	hosts := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for i, host := range hosts {
		name := []string{"node1", "node2", "node3"}[i]
		inv.SetNode(name, Node{Name: name, Address: host, Password: "pw", PrimaryNIC: "ens3", SecondaryNIC: "ens4"})
		inv.SetGlobal(Global{VIP: "10.0.0.100", RouterID: "51"})
		require.NoError(t, inv.Save())
	}

	reloaded, err := Load(path)
	require.NoError(t, err)

	entries, err := reloaded.Nodes()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("node%d", i+1), e.Key)
		assert.Equal(t, hosts[i], e.Node.Address)
	}

	global := reloaded.Global()
	assert.Equal(t, Global{VIP: "10.0.0.100", RouterID: "51"}, global)

	// Only vip and router id are written; template keys are kept.
	sec, err := reloaded.cfg.GetSection("global")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ntp_server", "vip", "keepalived_router_id"}, sec.KeyStrings())
}

func TestSingleNode(t *testing.T) {
	path := writeTemplate(t, "[node]\nnode = placeholder,0.0.0.0,x,eth0,eth0\n")

	inv, err := Load(path)
	require.NoError(t, err)
	inv.SetNode(SingleNodeKey, Node{Name: "node1", Address: "10.0.0.9", Password: "pw", PrimaryNIC: "ens3", SecondaryNIC: "ens3"})
	require.NoError(t, inv.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	entries, err := reloaded.Nodes()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SingleNodeKey, entries[0].Key)
	assert.Equal(t, "node1,10.0.0.9,pw,ens3,ens3", entries[0].Node.String())
	assert.Equal(t, Global{}, reloaded.Global())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	assert.Error(t, err)
}

func TestBytes(t *testing.T) {
	inv, err := Load(writeTemplate(t, multiNodeTemplate))
	require.NoError(t, err)
	inv.SetGlobal(Global{VIP: "10.0.0.100", RouterID: "51"})

	data, err := inv.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(data), "vip")
	assert.Contains(t, string(data), "10.0.0.100")
}

func TestSave_CommentCharactersStayRaw(t *testing.T) {
	path := writeTemplate(t, "[node]\n")

	inv, err := Load(path)
	require.NoError(t, err)
	inv.SetNode(SingleNodeKey, Node{Name: "node1", Address: "10.0.0.5", Password: "Pa#ss;w0rd", PrimaryNIC: "ens3", SecondaryNIC: "ens4"})
	require.NoError(t, inv.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "node = node1,10.0.0.5,Pa#ss;w0rd,ens3,ens4\n")
	assert.NotContains(t, string(data), "`")

	reloaded, err := Load(path)
	require.NoError(t, err)
	entries, err := reloaded.Nodes()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Pa#ss;w0rd", entries[0].Node.Password)
}
