package config

import "fmt"

// Arch is the CPU architecture of the deployed hosts.
type Arch string

const (
	// ArchAMD64 is x86_64.
	ArchAMD64 Arch = "amd64"
	// ArchARM64 is aarch64.
	ArchARM64 Arch = "arm64"
)

// ParseArch validates an architecture name.
func ParseArch(s string) (Arch, error) {
	switch Arch(s) {
	case ArchAMD64, ArchARM64:
		return Arch(s), nil
	default:
		return "", fmt.Errorf("unsupported architecture %q (want amd64 or arm64)", s)
	}
}

// AvailabilityZone returns the compute availability zone for the architecture.
func (a Arch) AvailabilityZone() string {
	if a == ArchARM64 {
		return "nova-arm"
	}
	return "nova"
}

// Mode is the deployment topology.
type Mode string

const (
	// ModeAllInOne deploys every service on a single node.
	ModeAllInOne Mode = "all_in_one"
	// ModeMultiNode deploys a three node cluster behind a keepalived VIP.
	ModeMultiNode Mode = "multi_node"
)

// ParseMode validates a deployment mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAllInOne, ModeMultiNode:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unsupported mode %q (want all_in_one or multi_node)", s)
	}
}

// HostCount is the exact number of hosts the mode requires.
func (m Mode) HostCount() int {
	if m == ModeMultiNode {
		return 3
	}
	return 1
}

// InventoryTemplate is the ini template name under <work_dir>/configs.
func (m Mode) InventoryTemplate() string {
	if m == ModeMultiNode {
		return "multinode.ini"
	}
	return "all-in-one.ini"
}
