package orchestration

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wangkuntian/pipeman/internal/config"
)

// PipelineState records what a run has already built.
type PipelineState struct {
	RunID      string      `yaml:"run_id,omitempty"`
	Timestamp  string      `yaml:"timestamp"`
	Arch       config.Arch `yaml:"arch"`
	Mode       config.Mode `yaml:"mode"`
	Stage      string      `yaml:"stage"`
	ImageID    string      `yaml:"image_id,omitempty"`
	SnapshotID string      `yaml:"snapshot_id,omitempty"`
	Hosts      []string    `yaml:"hosts,omitempty"`
	VIP        string      `yaml:"vip,omitempty"`

	InstallerServerID string `yaml:"installer_server_id,omitempty"`
	InstallerVolumeID string `yaml:"installer_volume_id,omitempty"`

	UpdatedAt time.Time `yaml:"updated_at"`
}

// ImageBuilt reports whether an installer image is known.
func (p *PipelineState) ImageBuilt() bool { return p.ImageID != "" }

// SnapshotExists reports whether an installed volume snapshot is known.
func (p *PipelineState) SnapshotExists() bool { return p.SnapshotID != "" }

// ServersExist reports whether the fleet hosts are known.
func (p *PipelineState) ServersExist() bool { return len(p.Hosts) > 0 }

// HostsConfigured reports whether the inventory has been uploaded.
func (p *PipelineState) HostsConfigured() bool {
	return p.Stage == StateConfigured || p.Stage == StateDeployed
}

// LoadState reads a state file written by SaveState.
func LoadState(path string) (*PipelineState, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path given on the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	var st PipelineState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return &st, nil
}

// SaveState writes the state through a temporary file so a crash never
// leaves a truncated file behind.
func SaveState(path string, st *PipelineState) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move state file into place: %w", err)
	}
	return nil
}
