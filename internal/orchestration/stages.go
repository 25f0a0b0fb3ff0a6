package orchestration

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/inventory"
	"github.com/wangkuntian/pipeman/internal/platform/openstack"
	"github.com/wangkuntian/pipeman/internal/provisioning"
	"github.com/wangkuntian/pipeman/internal/util/async"
	"github.com/wangkuntian/pipeman/internal/util/labels"
	"github.com/wangkuntian/pipeman/internal/util/naming"
)

const (
	remoteIgnitionPath = "/root/uswift.ign"
	remoteConfigPath   = "/etc/ustack-deploy/config.ini"
	archivedConfigName = "config.ini"
	installAttempts    = 2
)

// labels tags servers with the run they belong to.
func (o *Orchestrator) labels(role string) map[string]string {
	return labels.NewLabelBuilder(o.spec.Timestamp).
		WithRole(role).
		WithArch(string(o.spec.Arch)).
		WithRunIDIfSet(o.state.RunID).
		Build()
}

func (o *Orchestrator) buildImage(ctx context.Context) error {
	id, err := o.coord.CreateISOImage(ctx, o.spec.ImageName)
	if err != nil {
		return err
	}
	o.spec.ImageID = id
	return nil
}

// setupInstaller boots the installer image next to an empty volume and
// writes the OS onto that volume.
func (o *Orchestrator) setupInstaller(ctx context.Context) error {
	var (
		server *openstack.Server
		volume *openstack.Volume
	)
	err := async.RunParallel(ctx, []async.Task{
		{Name: "installer server", Func: func(ctx context.Context) error {
			s, err := o.coord.CreateActiveServer(ctx, openstack.ServerCreateOpts{
				Name:             naming.ISOServer(o.spec.Timestamp, o.cfg.Default.ISOServerName),
				Flavor:           o.cfg.OpenStack.EmptyDiskFlavor,
				Image:            o.spec.ImageID,
				AvailabilityZone: o.spec.AvailabilityZone,
				Metadata:         o.labels(labels.RoleInstaller),
			})
			server = s
			return err
		}},
		{Name: "installer volume", Func: func(ctx context.Context) error {
			v, err := o.coord.CreateAvailableVolume(ctx, naming.ISOVolume(o.spec.Timestamp, o.cfg.Default.ISOVolumeName), o.spec.ISOVolumeSize)
			volume = v
			return err
		}},
	})
	if err != nil {
		return err
	}
	o.installer.serverID = server.ID
	o.installer.volumeID = volume.ID

	host, err := o.coord.Address(server)
	if err != nil {
		return err
	}
	o.installer.host = host

	attachment, err := o.coord.AttachVolume(ctx, server.ID, volume.ID)
	if err != nil {
		return err
	}
	o.installer.device = attachment.Device

	if err := o.coord.SetVolumeBootable(ctx, volume.ID); err != nil {
		return err
	}
	return o.install(ctx)
}

// install uploads the ignition file and runs the installer against the
// attached volume, retrying once. The host is then rebooted and must come
// back before the stage completes.
func (o *Orchestrator) install(ctx context.Context) error {
	host, device := o.installer.host, o.installer.device
	remote, err := o.coord.AcquireSession(ctx, host, o.spec.User, o.spec.Password)
	if err != nil {
		return err
	}
	defer func() { _ = remote.Close() }()

	ignition := filepath.Join(o.cfg.ConfigsDir(), o.cfg.Ignition.File)
	o.log.Info("uploading ignition file", "host", host, "file", ignition)
	if err := remote.Upload(ctx, ignition, remoteIgnitionPath); err != nil {
		return err
	}

	cmd := o.commands.InstallUSwift(device)
	for attempt := 1; attempt <= installAttempts; attempt++ {
		o.log.Info("installing", "host", host, "device", device, "attempt", attempt)
		if err = remote.ExecuteStreaming(ctx, cmd, true); err == nil {
			break
		}
		o.log.Error(err, "install failed", "host", host, "attempt", attempt)
	}
	if err != nil {
		return fmt.Errorf("install on %s failed after %d attempts: %w", host, installAttempts, err)
	}
	o.log.Info("install succeeded", "host", host)

	remote.Reboot(ctx)
	back, err := o.coord.AcquireSession(ctx, host, o.spec.User, o.spec.Password)
	if err != nil {
		return fmt.Errorf("installer did not come back after reboot: %w", err)
	}
	return back.Close()
}

func (o *Orchestrator) snapshot(ctx context.Context) error {
	volumeID := o.installer.volumeID
	snap, err := o.coord.CreateAvailableSnapshot(ctx, volumeID, naming.VolumeSnapshot(o.spec.Timestamp, volumeID))
	if err != nil {
		return err
	}
	o.spec.SnapshotID = snap.ID
	return nil
}

func (o *Orchestrator) provisionFleet(ctx context.Context) error {
	servers, err := o.coord.CreateFleet(ctx, provisioning.FleetOpts{
		Prefix:           naming.FleetPrefix(o.spec.Timestamp, o.cfg.Default.ServerPrefix),
		Count:            o.spec.Count,
		Flavor:           o.cfg.OpenStack.Flavor,
		AvailabilityZone: o.spec.AvailabilityZone,
		SnapshotID:       o.spec.SnapshotID,
		VolumeSizeGB:     o.spec.ServerVolumeSize,
		Metadata:         o.labels(labels.RoleNode),
	})
	if err != nil {
		return err
	}
	hosts, err := o.coord.Addresses(servers)
	if err != nil {
		return err
	}
	o.spec.Hosts = hosts
	o.log.Info("fleet ready", "hosts", hosts)
	return nil
}

// configure names every host, renders the inventory and uploads it to the
// first host.
func (o *Orchestrator) configure(ctx context.Context) error {
	if err := o.spec.ValidateHosts(); err != nil {
		return err
	}
	sessions, err := o.coord.RemoteSessions(ctx, o.spec.Hosts, o.spec.User, o.spec.Password)
	if err != nil {
		return err
	}
	defer provisioning.CloseAll(sessions)

	inv, err := inventory.Load(o.spec.InventoryFile)
	if err != nil {
		return err
	}

	if o.spec.Mode == config.ModeAllInOne {
		n, err := o.node(ctx, sessions[0], 1)
		if err != nil {
			return err
		}
		inv.SetNode(inventory.SingleNodeKey, n)
		if err := inv.Save(); err != nil {
			return err
		}
	} else {
		for i, s := range sessions {
			n, err := o.node(ctx, s, i+1)
			if err != nil {
				return err
			}
			inv.SetNode(n.Name, n)
			inv.SetGlobal(inventory.Global{VIP: o.spec.VIP, RouterID: o.spec.RouterID})
			if err := inv.Save(); err != nil {
				return err
			}
		}
	}

	primary := sessions[0]
	o.log.Info("uploading inventory", "host", primary.Host(), "file", inv.Path())
	return primary.Upload(ctx, inv.Path(), remoteConfigPath)
}

// node sets the hostname of the index-th host and reads its interfaces.
func (o *Orchestrator) node(ctx context.Context, s provisioning.Remote, index int) (inventory.Node, error) {
	name := naming.Node(index)
	s.SetHostname(ctx, name)
	primary, secondary, err := s.NetworkInterfaces(ctx)
	if err != nil {
		return inventory.Node{}, fmt.Errorf("host %s: %w", s.Host(), err)
	}
	return inventory.Node{
		Name:         name,
		Address:      s.Host(),
		Password:     o.spec.Password,
		PrimaryNIC:   primary,
		SecondaryNIC: secondary,
	}, nil
}

// deploy launches the remote deploy script. Its outcome is logged only;
// the run is done once the output stream closes.
func (o *Orchestrator) deploy(ctx context.Context) error {
	primary, err := o.coord.AcquireSession(ctx, o.spec.Hosts[0], o.spec.User, o.spec.Password)
	if err != nil {
		return err
	}
	defer func() { _ = primary.Close() }()

	if err := primary.ExecuteStreaming(ctx, o.commands.Deploy(o.spec.Mode), false); err != nil {
		o.log.Error(err, "deploy script failed", "host", primary.Host())
	} else {
		o.log.Info("deploy script finished", "host", primary.Host())
	}

	key, err := o.archiver.ArchiveAs(ctx, o.spec.Timestamp, archivedConfigName, o.spec.InventoryFile)
	if err != nil {
		o.log.Error(err, "failed to archive inventory")
	} else if key != "" {
		o.log.Info("inventory archived", "key", key)
	}
	return nil
}
