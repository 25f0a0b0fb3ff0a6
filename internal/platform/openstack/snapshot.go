package openstack

import (
	"context"
	"net/http"
	"net/url"
)

// SnapshotAvailable is the cinder status of a usable snapshot.
const SnapshotAvailable = "available"

// CreateVolumeSnapshot snapshots a volume, forcing it even while attached.
func (c *Client) CreateVolumeSnapshot(ctx context.Context, name, volumeID string) (*Snapshot, error) {
	c.log.Info("create volume snapshot", "volume", volumeID, "name", name)
	body := snapshotCreateRequest{Snapshot: snapshotCreate{Name: name, VolumeID: volumeID, Force: true}}
	env, err := requestJSONWithBody[snapshotEnvelope](ctx, c, "create_snapshot", http.MethodPost, c.volumeURL("snapshots"), http.StatusAccepted, body)
	if err != nil {
		return nil, err
	}
	return &env.Snapshot, nil
}

// ShowVolumeSnapshot fetches one snapshot.
func (c *Client) ShowVolumeSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	env, err := requestJSON[snapshotEnvelope](ctx, c, "show_snapshot", http.MethodGet, c.volumeURL("snapshots/"+id), http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &env.Snapshot, nil
}

// ListVolumeSnapshots lists the available snapshots of a volume.
func (c *Client) ListVolumeSnapshots(ctx context.Context, volumeID string) ([]Snapshot, error) {
	q := url.Values{}
	q.Set("volume_id", volumeID)
	q.Set("status", SnapshotAvailable)
	list, err := requestJSON[snapshotList](ctx, c, "list_snapshots", http.MethodGet, c.volumeURL("snapshots/detail?"+q.Encode()), http.StatusOK)
	if err != nil {
		return nil, err
	}
	return list.Snapshots, nil
}

// WaitVolumeSnapshot polls the snapshot every ResourcePoll until it reaches status.
func (c *Client) WaitVolumeSnapshot(ctx context.Context, id, status string) (*Snapshot, error) {
	return wait(ctx, c, "snapshot", id, status, c.resourcePolicy(), func(ctx context.Context, id string) (*Snapshot, string, error) {
		s, err := c.ShowVolumeSnapshot(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return s, s.Status, nil
	})
}
