package openstack

import (
	"context"
	"net/http"
	"net/url"
)

// ShowPort fetches one port.
func (c *Client) ShowPort(ctx context.Context, id string) (*Port, error) {
	c.log.Info("show port", "port", id)
	env, err := requestJSON[portEnvelope](ctx, c, "show_port", http.MethodGet, c.networkURL("ports/"+id), http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &env.Port, nil
}

// ListPorts lists the ports bound to a device, usually a server.
func (c *Client) ListPorts(ctx context.Context, deviceID string) ([]Port, error) {
	c.log.Info("list ports", "device", deviceID)
	q := url.Values{}
	q.Set("device_id", deviceID)
	list, err := requestJSON[portList](ctx, c, "list_ports", http.MethodGet, c.networkURL("ports?"+q.Encode()), http.StatusOK)
	if err != nil {
		return nil, err
	}
	return list.Ports, nil
}

// ClearPortSecurityGroups disables port security and removes every
// security group from the port.
func (c *Client) ClearPortSecurityGroups(ctx context.Context, id string) (*Port, error) {
	c.log.Info("clear port security groups", "port", id)
	env, err := requestJSONWithBody[portEnvelope](ctx, c, "update_port", http.MethodPut, c.networkURL("ports/"+id), http.StatusOK, clearedPort())
	if err != nil {
		return nil, err
	}
	return &env.Port, nil
}
