package orchestration

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/util/naming"
)

// ErrHostCountMismatch is returned when the number of hosts does not fit the mode.
var ErrHostCountMismatch = errors.New("host count does not match deployment mode")

// DeploymentSpec is everything one run needs to know. Only ImageID,
// SnapshotID, Hosts and VIP change while the run progresses.
type DeploymentSpec struct {
	Arch             config.Arch
	Mode             config.Mode
	Count            int
	User             string
	Password         string
	AvailabilityZone string
	ImageID          string
	ImageName        string
	SnapshotID       string
	VIPPortID        string
	RouterID         string
	InventoryFile    string
	Timestamp        string
	Hosts            []string
	VIP              string
	ServerVolumeSize int
	ISOVolumeSize    int
}

// NewSpec builds the spec of a run from the configuration and the command
// line. Hosts, when given, must match the mode's host count.
func NewSpec(cfg *config.Config, arch config.Arch, mode config.Mode, hosts []string, now time.Time) (*DeploymentSpec, error) {
	a := cfg.Arch(arch)
	spec := &DeploymentSpec{
		Arch:             arch,
		Mode:             mode,
		Count:            mode.HostCount(),
		User:             a.User,
		Password:         a.Password,
		AvailabilityZone: arch.AvailabilityZone(),
		ImageID:          a.ImageID,
		ImageName:        a.ImageName,
		SnapshotID:       a.VolumeSnapshotID,
		VIPPortID:        a.VIPPortID,
		RouterID:         a.KeepalivedRouterID,
		InventoryFile:    filepath.Join(cfg.ConfigsDir(), mode.InventoryTemplate()),
		Timestamp:        naming.Timestamp(now),
		Hosts:            CleanHosts(hosts),
		ServerVolumeSize: cfg.Default.ServerVolumeSize,
		ISOVolumeSize:    cfg.Default.ISOVolumeSize,
	}

	if len(spec.Hosts) > 0 {
		if err := spec.ValidateHosts(); err != nil {
			return nil, err
		}
	}
	if mode == config.ModeMultiNode && spec.VIPPortID == "" {
		return nil, fmt.Errorf("%s.vip_port_id is required in %s mode", arch, mode)
	}
	return spec, nil
}

// CleanHosts trims every host and drops empty entries.
func CleanHosts(hosts []string) []string {
	var out []string
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// ValidateHosts checks the host count against the mode.
func (s *DeploymentSpec) ValidateHosts() error {
	if len(s.Hosts) != s.Count {
		return fmt.Errorf("%s mode needs %d host(s), got %d: %w", s.Mode, s.Count, len(s.Hosts), ErrHostCountMismatch)
	}
	return nil
}

// Resume seeds the spec from a saved run. Empty fields are left alone.
func (s *DeploymentSpec) Resume(st *PipelineState) error {
	if st.Mode != "" && st.Mode != s.Mode {
		return fmt.Errorf("state file was written for mode %s, not %s", st.Mode, s.Mode)
	}
	if st.ImageID != "" {
		s.ImageID = st.ImageID
	}
	if st.SnapshotID != "" {
		s.SnapshotID = st.SnapshotID
	}
	if len(st.Hosts) > 0 {
		s.Hosts = append([]string(nil), st.Hosts...)
		return s.ValidateHosts()
	}
	return nil
}
