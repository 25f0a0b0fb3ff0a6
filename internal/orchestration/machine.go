package orchestration

import (
	"github.com/looplab/fsm"
)

// Pipeline states.
const (
	StatePending        = "pending"
	StateImageReady     = "image_ready"
	StateInstallerReady = "installer_ready"
	StateSnapshotReady  = "snapshot_ready"
	StateFleetReady     = "fleet_ready"
	StateConfigured     = "configured"
	StateDeployed       = "deployed"
)

// Pipeline events. The use_* events skip work whose result is already known.
const (
	EventBuildImage     = "build_image"
	EventUseImage       = "use_image"
	EventSetupInstaller = "setup_installer"
	EventSnapshot       = "snapshot"
	EventUseSnapshot    = "use_snapshot"
	EventProvisionFleet = "provision_fleet"
	EventUseHosts       = "use_hosts"
	EventConfigure      = "configure"
	EventDeploy         = "deploy"
)

// transitions is the full stage graph.
var transitions = fsm.Events{
	{Name: EventBuildImage, Src: []string{StatePending}, Dst: StateImageReady},
	{Name: EventUseImage, Src: []string{StatePending}, Dst: StateImageReady},
	{Name: EventSetupInstaller, Src: []string{StateImageReady}, Dst: StateInstallerReady},
	{Name: EventSnapshot, Src: []string{StateInstallerReady}, Dst: StateSnapshotReady},
	{Name: EventUseSnapshot, Src: []string{StatePending}, Dst: StateSnapshotReady},
	{Name: EventProvisionFleet, Src: []string{StateSnapshotReady}, Dst: StateFleetReady},
	{Name: EventUseHosts, Src: []string{StatePending}, Dst: StateFleetReady},
	{Name: EventConfigure, Src: []string{StateFleetReady}, Dst: StateConfigured},
	{Name: EventDeploy, Src: []string{StateConfigured}, Dst: StateDeployed},
}

func newMachine(callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(StatePending, transitions, callbacks)
}
