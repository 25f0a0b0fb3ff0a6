package testing

import (
	"github.com/wangkuntian/pipeman/internal/config"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a new ConfigBuilder with sensible defaults.
func NewConfigBuilder() *ConfigBuilder {
	arch := config.ArchConfig{
		User:               "root",
		Password:           "secret",
		ImageName:          "uswift.iso",
		KeepalivedRouterID: "51",
	}
	return &ConfigBuilder{
		cfg: config.Config{
			Default: config.DefaultConfig{
				WorkDir:          "/opt/pipeman",
				Host:             "10.0.0.2",
				Port:             22,
				User:             "root",
				Password:         "bootstrap",
				ISOServerName:    "uswift-installer",
				ISOVolumeName:    "uswift-volume",
				ISOVolumeSize:    100,
				ServerVolumeSize: 200,
				ServerPrefix:     "ustack",
			},
			Log: config.LogConfig{LogDir: "logs"},
			OpenStack: config.OpenStackConfig{
				Host:                "10.0.0.1",
				User:                "admin",
				Password:            "admin",
				AuthURL:             "http://10.0.0.1:5000/v3",
				Project:             "admin",
				ProjectID:           "project-1",
				Domain:              "Default",
				Flavor:              "flavor-large",
				EmptyDiskFlavor:     "flavor-empty",
				ExternalNetwork:     "net-external",
				ExternalNetworkName: "public",
				InternalNetwork:     "net-internal",
			},
			AMD64:    arch,
			ARM64:    arch,
			Ignition: config.IgnitionConfig{File: "uswift.ign"},
		},
	}
}

// WithWorkDir sets the work directory.
func (b *ConfigBuilder) WithWorkDir(dir string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Default.WorkDir = dir
	return newBuilder
}

// WithImage sets a pre-built installer image for both architectures.
func (b *ConfigBuilder) WithImage(id string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.AMD64.ImageID = id
	newBuilder.cfg.ARM64.ImageID = id
	return newBuilder
}

// WithSnapshot sets a pre-built volume snapshot for both architectures.
func (b *ConfigBuilder) WithSnapshot(id string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.AMD64.VolumeSnapshotID = id
	newBuilder.cfg.ARM64.VolumeSnapshotID = id
	return newBuilder
}

// WithVIPPort sets the keepalived VIP port for both architectures.
func (b *ConfigBuilder) WithVIPPort(id string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.AMD64.VIPPortID = id
	newBuilder.cfg.ARM64.VIPPortID = id
	return newBuilder
}

// WithArchive enables archival to the given endpoint and bucket.
func (b *ConfigBuilder) WithArchive(endpoint, bucket string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Archive = config.ArchiveConfig{
		Enabled:  true,
		Endpoint: endpoint,
		Region:   "us-east-1",
		Bucket:   bucket,
		Prefix:   "pipeman",
	}
	return newBuilder
}

// Build returns the constructed config.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.cfg // copy
	return &cfg
}

// clone copies the builder. Config holds only values, so a struct copy is deep.
func (b *ConfigBuilder) clone() *ConfigBuilder {
	return &ConfigBuilder{cfg: b.cfg}
}
