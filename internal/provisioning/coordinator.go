package provisioning

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/wangkuntian/pipeman/internal/command"
	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/platform/openstack"
	"github.com/wangkuntian/pipeman/internal/util/async"
	"github.com/wangkuntian/pipeman/internal/util/naming"
)

// ErrPortHasNoIP is returned when the VIP port carries no fixed address.
var ErrPortHasNoIP = errors.New("port has no fixed ip")

// ErrNoImageID is returned when the image create command printed nothing.
var ErrNoImageID = errors.New("image create printed no id")

const (
	defaultVolumeZone  = "nova"
	defaultSSHPort     = 22
	defaultPortBatch   = 4
	phaseImage         = "image"
	phaseVolume        = "volume"
	phaseServer        = "server"
	phaseSnapshot      = "snapshot"
	phaseFleet         = "fleet"
	resourceImage      = "image"
	resourceVolume     = "volume"
	resourceServer     = "server"
	resourceSnapshot   = "snapshot"
	resourceAttachment = "attachment"
)

// Bootstrap is the control host where installer images are built.
type Bootstrap struct {
	Host     string
	Port     int
	User     string
	Password string
	WorkDir  string
}

// BootstrapFromConfig reads the bootstrap host from the [default] section.
func BootstrapFromConfig(cfg *config.DefaultConfig) Bootstrap {
	return Bootstrap{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		WorkDir:  cfg.WorkDir,
	}
}

// Coordinator runs compound provisioning actions.
type Coordinator struct {
	cloud      CloudAPI
	connector  Connector
	commands   *command.Registry
	bootstrap  Bootstrap
	volumeZone string
	portBatch  int
	observer   Observer
	log        logr.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBootstrap sets the host used by CreateISOImage.
func WithBootstrap(b Bootstrap) Option {
	return func(c *Coordinator) {
		c.bootstrap = b
	}
}

// WithCommands replaces the default command templates.
func WithCommands(r *command.Registry) Option {
	return func(c *Coordinator) {
		c.commands = r
	}
}

// WithVolumeZone sets the availability zone for new volumes.
func WithVolumeZone(zone string) Option {
	return func(c *Coordinator) {
		c.volumeZone = zone
	}
}

// WithPortBatchSize bounds concurrent security group updates.
func WithPortBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.portBatch = n
		}
	}
}

// WithObserver sets the event sink.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// New creates a Coordinator.
func New(cloud CloudAPI, connector Connector, opts ...Option) *Coordinator {
	c := &Coordinator{
		cloud:      cloud,
		connector:  connector,
		commands:   command.NewRegistry(),
		volumeZone: defaultVolumeZone,
		portBatch:  defaultPortBatch,
		observer:   nopObserver{},
		log:        logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateISOImage uploads <work_dir>/<name> from the bootstrap host to the
// image service and waits for the image to become active.
func (c *Coordinator) CreateISOImage(ctx context.Context, name string) (string, error) {
	LogResourceCreating(c.observer, phaseImage, resourceImage, name)

	b := c.bootstrap
	remote, err := c.connector.Acquire(ctx, b.Host, b.Port, b.User, b.Password)
	if err != nil {
		return "", fmt.Errorf("failed to reach bootstrap host %s: %w", b.Host, err)
	}
	defer func() { _ = remote.Close() }()

	out, _, err := remote.Execute(ctx, c.commands.CreateImage("iso", filepath.Join(b.WorkDir, name), name))
	if err != nil {
		return "", fmt.Errorf("failed to create image %s: %w", name, err)
	}
	id := lastLine(out)
	if id == "" {
		return "", fmt.Errorf("image %s: %w", name, ErrNoImageID)
	}
	c.log.Info("image created", "name", name, "id", id)

	if _, err := c.cloud.WaitImage(ctx, id, openstack.ImageActive); err != nil {
		LogResourceFailed(c.observer, phaseImage, resourceImage, name, err)
		return "", fmt.Errorf("image %s: %w", id, err)
	}
	LogResourceReady(c.observer, phaseImage, resourceImage, name, id, openstack.ImageActive)
	return id, nil
}

// CreateAvailableVolume creates an empty volume and waits until it is available.
func (c *Coordinator) CreateAvailableVolume(ctx context.Context, name string, sizeGB int) (*openstack.Volume, error) {
	LogResourceCreating(c.observer, phaseVolume, resourceVolume, name)
	v, err := c.cloud.CreateVolume(ctx, name, sizeGB, c.volumeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	v, err = c.cloud.WaitVolume(ctx, v.ID, openstack.VolumeAvailable)
	if err != nil {
		LogResourceFailed(c.observer, phaseVolume, resourceVolume, name, err)
		return nil, fmt.Errorf("volume %s: %w", name, err)
	}
	LogResourceReady(c.observer, phaseVolume, resourceVolume, name, v.ID, openstack.VolumeAvailable)
	return v, nil
}

// CreateActiveServer creates a server and waits until it is ACTIVE.
// The returned server carries its addresses.
func (c *Coordinator) CreateActiveServer(ctx context.Context, opts openstack.ServerCreateOpts) (*openstack.Server, error) {
	LogResourceCreating(c.observer, phaseServer, resourceServer, opts.Name)
	s, err := c.cloud.CreateServer(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create server %s: %w", opts.Name, err)
	}
	s, err = c.cloud.WaitServer(ctx, s.ID, openstack.ServerActive)
	if err != nil {
		LogResourceFailed(c.observer, phaseServer, resourceServer, opts.Name, err)
		return nil, fmt.Errorf("server %s: %w", opts.Name, err)
	}
	LogResourceReady(c.observer, phaseServer, resourceServer, opts.Name, s.ID, openstack.ServerActive)
	return s, nil
}

// AttachVolume attaches a volume that is deleted with the server and waits
// for it to report in-use.
func (c *Coordinator) AttachVolume(ctx context.Context, serverID, volumeID string) (*openstack.VolumeAttachment, error) {
	a, err := c.cloud.AttachVolume(ctx, serverID, volumeID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to attach volume %s to server %s: %w", volumeID, serverID, err)
	}
	if _, err := c.cloud.WaitVolume(ctx, volumeID, openstack.VolumeInUse); err != nil {
		return nil, fmt.Errorf("volume %s: %w", volumeID, err)
	}
	LogResourceReady(c.observer, phaseVolume, resourceAttachment, serverID, volumeID, openstack.VolumeInUse)
	return a, nil
}

// DetachVolume detaches a volume and waits until it is available again.
func (c *Coordinator) DetachVolume(ctx context.Context, serverID, volumeID string) error {
	if err := c.cloud.DetachVolume(ctx, serverID, volumeID); err != nil {
		return fmt.Errorf("failed to detach volume %s from server %s: %w", volumeID, serverID, err)
	}
	if _, err := c.cloud.WaitVolume(ctx, volumeID, openstack.VolumeAvailable); err != nil {
		return fmt.Errorf("volume %s: %w", volumeID, err)
	}
	return nil
}

// SetVolumeBootable marks the volume bootable.
func (c *Coordinator) SetVolumeBootable(ctx context.Context, volumeID string) error {
	if err := c.cloud.SetVolumeBootable(ctx, volumeID, true); err != nil {
		return fmt.Errorf("failed to set volume %s bootable: %w", volumeID, err)
	}
	return nil
}

// CreateAvailableSnapshot snapshots a volume and waits until the snapshot is available.
func (c *Coordinator) CreateAvailableSnapshot(ctx context.Context, volumeID, name string) (*openstack.Snapshot, error) {
	LogResourceCreating(c.observer, phaseSnapshot, resourceSnapshot, name)
	s, err := c.cloud.CreateVolumeSnapshot(ctx, name, volumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot volume %s: %w", volumeID, err)
	}
	s, err = c.cloud.WaitVolumeSnapshot(ctx, s.ID, openstack.SnapshotAvailable)
	if err != nil {
		LogResourceFailed(c.observer, phaseSnapshot, resourceSnapshot, name, err)
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}
	LogResourceReady(c.observer, phaseSnapshot, resourceSnapshot, name, s.ID, openstack.SnapshotAvailable)
	return s, nil
}

// ClearPortSecurityGroups disables port security on every port, at most
// the configured batch size at a time. Failures are logged and dropped.
func (c *Coordinator) ClearPortSecurityGroups(ctx context.Context, ports []openstack.Port) {
	err := async.ForEachLimit(ctx, ports, c.portBatch, func(ctx context.Context, p openstack.Port) error {
		if _, err := c.cloud.ClearPortSecurityGroups(ctx, p.ID); err != nil {
			return fmt.Errorf("port %s: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		c.log.Error(err, "failed to clear port security groups")
	}
}

// FleetServerOpts describes one fleet member.
type FleetServerOpts struct {
	Name             string
	VolumeName       string
	Flavor           string
	AvailabilityZone string
	SnapshotID       string
	VolumeSizeGB     int
	Metadata         map[string]string
}

// CreateFleetServer boots a server from the snapshot on both networks,
// opens its ports, and attaches a fresh data volume.
func (c *Coordinator) CreateFleetServer(ctx context.Context, opts FleetServerOpts) (*openstack.Server, error) {
	server, err := c.CreateActiveServer(ctx, openstack.ServerCreateOpts{
		Name:             opts.Name,
		Flavor:           opts.Flavor,
		AvailabilityZone: opts.AvailabilityZone,
		SnapshotID:       opts.SnapshotID,
		MultiPort:        true,
		Metadata:         opts.Metadata,
	})
	if err != nil {
		return nil, err
	}

	ports, err := c.cloud.ListPorts(ctx, server.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ports of server %s: %w", opts.Name, err)
	}
	c.ClearPortSecurityGroups(ctx, ports)

	volume, err := c.CreateAvailableVolume(ctx, opts.VolumeName, opts.VolumeSizeGB)
	if err != nil {
		return nil, err
	}
	if _, err := c.AttachVolume(ctx, server.ID, volume.ID); err != nil {
		return nil, err
	}
	return server, nil
}

// FleetOpts describes a fleet of identical servers.
type FleetOpts struct {
	Prefix           string
	Count            int
	Flavor           string
	AvailabilityZone string
	SnapshotID       string
	VolumeSizeGB     int
	// Metadata is copied onto every server.
	Metadata map[string]string
}

// CreateFleet creates Count servers concurrently. Servers are returned in
// index order (prefix-1 first) regardless of which finished first.
func (c *Coordinator) CreateFleet(ctx context.Context, opts FleetOpts) ([]*openstack.Server, error) {
	LogPhaseStart(c.observer, phaseFleet)
	servers, err := async.Map(ctx, opts.Count, func(ctx context.Context, i int) (*openstack.Server, error) {
		return c.CreateFleetServer(ctx, FleetServerOpts{
			Name:             naming.FleetServer(opts.Prefix, i+1),
			VolumeName:       naming.FleetVolume(opts.Prefix, i+1),
			Flavor:           opts.Flavor,
			AvailabilityZone: opts.AvailabilityZone,
			SnapshotID:       opts.SnapshotID,
			VolumeSizeGB:     opts.VolumeSizeGB,
			Metadata:         opts.Metadata,
		})
	})
	if err != nil {
		LogPhaseFailed(c.observer, phaseFleet, err)
		return nil, fmt.Errorf("failed to create fleet %s: %w", opts.Prefix, err)
	}
	return servers, nil
}

// Address returns the external address of a server.
func (c *Coordinator) Address(s *openstack.Server) (string, error) {
	return c.cloud.ExternalAddress(s)
}

// Addresses returns the external address of every server, in order.
func (c *Coordinator) Addresses(servers []*openstack.Server) ([]string, error) {
	hosts := make([]string, 0, len(servers))
	for _, s := range servers {
		addr, err := c.Address(s)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, addr)
	}
	return hosts, nil
}

// AcquireSession opens a retrying session to host on port 22.
func (c *Coordinator) AcquireSession(ctx context.Context, host, user, password string) (Remote, error) {
	remote, err := c.connector.Acquire(ctx, host, defaultSSHPort, user, password)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", host, err)
	}
	return remote, nil
}

// RemoteSessions acquires one session per host concurrently. Sessions are
// returned in host order. On any failure the sessions already opened are closed.
func (c *Coordinator) RemoteSessions(ctx context.Context, hosts []string, user, password string) ([]Remote, error) {
	sessions, err := async.Map(ctx, len(hosts), func(ctx context.Context, i int) (Remote, error) {
		return c.AcquireSession(ctx, hosts[i], user, password)
	})
	if err != nil {
		CloseAll(sessions)
		return nil, err
	}
	return sessions, nil
}

// CloseAll closes every non-nil session.
func CloseAll(sessions []Remote) {
	for _, s := range sessions {
		if s != nil {
			_ = s.Close()
		}
	}
}

// VIP returns the first fixed address of the port.
func (c *Coordinator) VIP(ctx context.Context, portID string) (string, error) {
	port, err := c.cloud.ShowPort(ctx, portID)
	if err != nil {
		return "", fmt.Errorf("failed to read vip port %s: %w", portID, err)
	}
	if len(port.FixedIPs) == 0 || port.FixedIPs[0].IPAddress == "" {
		return "", fmt.Errorf("vip port %s: %w", portID, ErrPortHasNoIP)
	}
	return port.FixedIPs[0].IPAddress, nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
