package provisioning

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/wangkuntian/pipeman/internal/command"
	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/platform/openstack"
	"github.com/wangkuntian/pipeman/internal/platform/ssh"
	"github.com/wangkuntian/pipeman/internal/util/retry"
)

// CloudAPI is the control plane surface the coordinator drives.
// Implemented by *openstack.Client.
type CloudAPI interface {
	WaitImage(ctx context.Context, id, status string) (*openstack.Image, error)

	CreateVolume(ctx context.Context, name string, sizeGB int, zone string) (*openstack.Volume, error)
	WaitVolume(ctx context.Context, id, status string) (*openstack.Volume, error)
	AttachVolume(ctx context.Context, serverID, volumeID string, deleteOnTermination bool) (*openstack.VolumeAttachment, error)
	DetachVolume(ctx context.Context, serverID, volumeID string) error
	SetVolumeBootable(ctx context.Context, volumeID string, flag bool) error

	CreateVolumeSnapshot(ctx context.Context, name, volumeID string) (*openstack.Snapshot, error)
	WaitVolumeSnapshot(ctx context.Context, id, status string) (*openstack.Snapshot, error)

	CreateServer(ctx context.Context, opts openstack.ServerCreateOpts) (*openstack.Server, error)
	WaitServer(ctx context.Context, id, status string) (*openstack.Server, error)
	ExternalAddress(s *openstack.Server) (string, error)

	ShowPort(ctx context.Context, id string) (*openstack.Port, error)
	ListPorts(ctx context.Context, deviceID string) ([]openstack.Port, error)
	ClearPortSecurityGroups(ctx context.Context, id string) (*openstack.Port, error)
}

// Remote is one authenticated session to a host. Implemented by *ssh.Session.
type Remote interface {
	Host() string
	Execute(ctx context.Context, cmd string) (string, int, error)
	ExecuteStreaming(ctx context.Context, cmd string, stderrOnly bool) error
	Upload(ctx context.Context, localPath, remotePath string) error
	NetworkInterfaces(ctx context.Context) (string, string, error)
	SetHostname(ctx context.Context, name string)
	Reboot(ctx context.Context)
	Close() error
}

// Connector opens sessions, retrying until the host answers or the retry
// budget is spent.
type Connector interface {
	Acquire(ctx context.Context, host string, port int, user, password string) (Remote, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, host string, port int, user, password string) (Remote, error)

// Acquire implements Connector.
func (f ConnectorFunc) Acquire(ctx context.Context, host string, port int, user, password string) (Remote, error) {
	return f(ctx, host, port, user, password)
}

// SSHConnector acquires sessions with ssh.AcquireWithRetry.
type SSHConnector struct {
	Timeouts *config.Timeouts
	Commands *command.Registry
	Logger   logr.Logger
	Sleep    retry.Sleeper
}

// Acquire implements Connector.
func (c *SSHConnector) Acquire(ctx context.Context, host string, port int, user, password string) (Remote, error) {
	cfg := &ssh.Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Commands: c.Commands,
		Logger:   c.Logger,
		Sleep:    c.Sleep,
	}
	if c.Timeouts != nil {
		cfg.DialTimeout = c.Timeouts.SSHDialTimeout
		cfg.RetryDelay = c.Timeouts.SessionRetry
		cfg.RetryMaxWait = c.Timeouts.SessionRetryMaxWait
	}

	session, err := ssh.AcquireWithRetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return session, nil
}
