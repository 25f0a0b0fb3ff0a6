package openstack

import (
	"context"
	"net/http"
)

// ServerActive is the nova status of a running server.
const ServerActive = "ACTIVE"

// ServerCreateOpts holds the parameters for creating a server.
type ServerCreateOpts struct {
	Name             string
	Flavor           string
	Image            string
	AvailabilityZone string

	// SnapshotID, when set, boots from a new volume cloned from the snapshot
	// and deleted with the server.
	SnapshotID string

	// MultiPort attaches the internal network as a second interface.
	MultiPort bool

	// Metadata is stored as server metadata.
	Metadata map[string]string
}

func (c *Client) serverPayload(opts ServerCreateOpts) serverCreateRequest {
	nets := []networkRef{{UUID: c.networks.external}}
	if opts.MultiPort {
		nets = append(nets, networkRef{UUID: c.networks.internal})
	}
	s := serverCreate{
		Name:             opts.Name,
		Networks:         nets,
		AvailabilityZone: opts.AvailabilityZone,
		ImageRef:         opts.Image,
		FlavorRef:        opts.Flavor,
		MaxCount:         1,
		Metadata:         opts.Metadata,
	}
	if opts.SnapshotID != "" {
		s.BlockDeviceMappingV2 = []BlockDevice{{
			BootIndex:           0,
			DeleteOnTermination: true,
			SourceType:          "snapshot",
			DestinationType:     "volume",
			UUID:                opts.SnapshotID,
		}}
	}
	return serverCreateRequest{Server: s}
}

// CreateServer requests a server. The returned server usually carries only its id.
func (c *Client) CreateServer(ctx context.Context, opts ServerCreateOpts) (*Server, error) {
	c.log.Info("create server", "name", opts.Name, "flavor", opts.Flavor, "zone", opts.AvailabilityZone, "snapshot", opts.SnapshotID)
	env, err := requestJSONWithBody[serverEnvelope](ctx, c, "create_server", http.MethodPost, c.computeURL("servers"), http.StatusAccepted, c.serverPayload(opts))
	if err != nil {
		return nil, err
	}
	return &env.Server, nil
}

// ShowServer fetches one server.
func (c *Client) ShowServer(ctx context.Context, id string) (*Server, error) {
	env, err := requestJSON[serverEnvelope](ctx, c, "show_server", http.MethodGet, c.computeURL("servers/"+id), http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &env.Server, nil
}

// WaitServer polls the server with a linearly growing interval until it
// reaches status, giving up once ServerPollMaxWait has been waited.
func (c *Client) WaitServer(ctx context.Context, id, status string) (*Server, error) {
	return wait(ctx, c, "server", id, status, c.serverPolicy(), func(ctx context.Context, id string) (*Server, string, error) {
		s, err := c.ShowServer(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return s, s.Status, nil
	})
}

// DetachISO ejects the installer media from a server.
func (c *Client) DetachISO(ctx context.Context, serverID string) error {
	c.log.Info("detach iso", "server", serverID)
	_, err := c.requestStatusWithBody(ctx, "detach_iso", http.MethodPost, c.computeURL("servers/"+serverID+"/action"), http.StatusAccepted, isoDetachRequest{})
	return err
}
