package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[default]
work_dir = "/opt/pipeman"
host = "10.0.0.5"
user = "root"
password = "secret"
iso_volume_size = 50
server_prefix = "ustack"

[log]
debug = true

[openstack]
host = "10.0.0.2"
user = "admin"
password = "admin-pass"
auth_url = "http://10.0.0.2:5000/v3"
project = "admin"
project_id = "p-123"
flavor = "m1.large"
empty_disk_flavor = "m1.empty"
external_network = "ext-uuid"
external_network_name = "public"
internal_network = "int-uuid"

[amd64]
user = "root"
password = "node-pass"
image_name = "uswift-amd64.iso"
vip_port_id = "vip-port"
keepalived_router_id = "51"

[arm64]
user = "root"
password = "arm-pass"
volume_snapshot_id = "snap-arm"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "/opt/pipeman", cfg.Default.WorkDir)
	assert.Equal(t, 22, cfg.Default.Port, "port defaults to 22")
	assert.Equal(t, 50, cfg.Default.ISOVolumeSize)
	assert.Equal(t, 100, cfg.Default.ServerVolumeSize)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, "logs", cfg.Log.LogDir)
	assert.Equal(t, "Default", cfg.OpenStack.Domain)
	assert.Equal(t, "p-123", cfg.OpenStack.ProjectID)
	assert.Equal(t, "public", cfg.OpenStack.ExternalNetworkName)
	assert.Equal(t, "vip-port", cfg.Arch(ArchAMD64).VIPPortID)
	assert.Equal(t, "snap-arm", cfg.Arch(ArchARM64).VolumeSnapshotID)
	assert.Equal(t, "uswift.ign", cfg.Ignition.File)
	assert.Equal(t, "/opt/pipeman/logs/pipeman.log", cfg.LogFile())
	assert.Equal(t, "/opt/pipeman/configs", cfg.ConfigsDir())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PIPEMAN_OPENSTACK_PASSWORD", "from-env")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OpenStack.Password)
}

func TestLoad_ValidationError(t *testing.T) {
	_, err := Load(writeConfig(t, "[default]\nwork_dir = \"/tmp\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openstack.host is required")
	assert.Contains(t, err.Error(), "openstack.auth_url is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	path := writeConfig(t, sampleTOML)

	got, err := ResolvePath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolvePath(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestResolvePath_Defaults(t *testing.T) {
	saved := DefaultPaths
	t.Cleanup(func() { DefaultPaths = saved })

	dir := t.TempDir()
	existing := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(existing, []byte(sampleTOML), 0o600))
	DefaultPaths = []string{filepath.Join(dir, "absent.toml"), existing}

	got, err := ResolvePath("")
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	DefaultPaths = []string{filepath.Join(dir, "absent.toml")}
	_, err = ResolvePath("")
	assert.ErrorIs(t, err, ErrNoConfigFile)
}

func TestParseArchAndMode(t *testing.T) {
	arch, err := ParseArch("arm64")
	require.NoError(t, err)
	assert.Equal(t, "nova-arm", arch.AvailabilityZone())
	assert.Equal(t, "nova", ArchAMD64.AvailabilityZone())

	_, err = ParseArch("riscv64")
	assert.Error(t, err)

	mode, err := ParseMode("multi_node")
	require.NoError(t, err)
	assert.Equal(t, 3, mode.HostCount())
	assert.Equal(t, "multinode.ini", mode.InventoryTemplate())
	assert.Equal(t, 1, ModeAllInOne.HostCount())
	assert.Equal(t, "all-in-one.ini", ModeAllInOne.InventoryTemplate())

	_, err = ParseMode("cluster")
	assert.Error(t, err)
}
