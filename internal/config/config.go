package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPaths are searched in order when no config file is given.
var DefaultPaths = []string{
	"/opt/pipeman/configs/config.toml",
	"./configs/config.toml",
}

// ErrNoConfigFile is returned when none of DefaultPaths exists.
var ErrNoConfigFile = errors.New("config file not exists")

// Config is the root of the TOML configuration.
type Config struct {
	Default   DefaultConfig   `mapstructure:"default"`
	Log       LogConfig       `mapstructure:"log"`
	OpenStack OpenStackConfig `mapstructure:"openstack"`
	AMD64     ArchConfig      `mapstructure:"amd64"`
	ARM64     ArchConfig      `mapstructure:"arm64"`
	Ignition  IgnitionConfig  `mapstructure:"ignition"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// DefaultConfig holds the bootstrap host and resource naming defaults.
type DefaultConfig struct {
	WorkDir          string `mapstructure:"work_dir"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	User             string `mapstructure:"user"`
	Password         string `mapstructure:"password"`
	ISOServerName    string `mapstructure:"iso_server_name"`
	ISOVolumeName    string `mapstructure:"iso_volume_name"`
	ISOVolumeSize    int    `mapstructure:"iso_volume_size"`
	ServerVolumeSize int    `mapstructure:"server_volume_size"`
	ServerPrefix     string `mapstructure:"server_prefix"`
	HostPrefix       string `mapstructure:"host_prefix"`
}

// LogConfig controls log verbosity and the log directory under work_dir.
type LogConfig struct {
	Debug  bool   `mapstructure:"debug"`
	LogDir string `mapstructure:"log_dir"`
}

// OpenStackConfig holds control plane credentials and placement defaults.
type OpenStackConfig struct {
	Host                string `mapstructure:"host"`
	User                string `mapstructure:"user"`
	Password            string `mapstructure:"password"`
	AuthURL             string `mapstructure:"auth_url"`
	Project             string `mapstructure:"project"`
	ProjectID           string `mapstructure:"project_id"`
	Domain              string `mapstructure:"domain"`
	Flavor              string `mapstructure:"flavor"`
	EmptyDiskFlavor     string `mapstructure:"empty_disk_flavor"`
	ExternalNetwork     string `mapstructure:"external_network"`
	ExternalNetworkName string `mapstructure:"external_network_name"`
	InternalNetwork     string `mapstructure:"internal_network"`
}

// ArchConfig holds per-architecture host credentials and reusable artifacts.
type ArchConfig struct {
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	ImageID            string `mapstructure:"image_id"`
	ImageName          string `mapstructure:"image_name"`
	VolumeSnapshotID   string `mapstructure:"volume_snapshot_id"`
	VIPPortID          string `mapstructure:"vip_port_id"`
	KeepalivedRouterID string `mapstructure:"keepalived_router_id"`
}

// IgnitionConfig names the ignition file under <work_dir>/configs.
type IgnitionConfig struct {
	File     string `mapstructure:"file"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig controls OpenTelemetry stage spans.
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

// ArchiveConfig controls archival of the rendered inventory to S3-compatible storage.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Arch returns the section for the given architecture.
func (c *Config) Arch(a Arch) ArchConfig {
	if a == ArchARM64 {
		return c.ARM64
	}
	return c.AMD64
}

// LogFile is the pipeman log path under the work directory.
func (c *Config) LogFile() string {
	return filepath.Join(c.Default.WorkDir, c.Log.LogDir, "pipeman.log")
}

// ConfigsDir is the directory holding inventory templates and the ignition file.
func (c *Config) ConfigsDir() string {
	return filepath.Join(c.Default.WorkDir, "configs")
}

// StateDir is where pipeline state files are written.
func (c *Config) StateDir() string {
	return filepath.Join(c.Default.WorkDir, "state")
}

// ResolvePath returns path if set, otherwise the first existing default path.
func ResolvePath(path string) (string, error) {
	if path != "" {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return "", fmt.Errorf("config file %q not exists", path)
		}
		return path, nil
	}
	for _, candidate := range DefaultPaths {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", ErrNoConfigFile
}

// Load reads the TOML file at path. Every key can be overridden through a
// PIPEMAN_<SECTION>_<KEY> environment variable.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("PIPEMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default.work_dir", "/opt/pipeman")
	v.SetDefault("default.port", 22)
	v.SetDefault("default.iso_server_name", "uswift-installer")
	v.SetDefault("default.iso_volume_name", "uswift-volume")
	v.SetDefault("default.iso_volume_size", 100)
	v.SetDefault("default.server_volume_size", 100)
	v.SetDefault("default.server_prefix", "ustack")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.log_dir", "logs")
	v.SetDefault("openstack.domain", "Default")
	v.SetDefault("ignition.file", "uswift.ign")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.file", "")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.prefix", "pipeman")
}
