package openstack

import (
	"context"
	"net/http"
)

const (
	// VolumeAvailable is the cinder status of a detached, usable volume.
	VolumeAvailable = "available"
	// VolumeInUse is the cinder status of an attached volume.
	VolumeInUse = "in-use"

	attachDevice = "/dev/vda"
)

// CreateVolume creates an empty volume of sizeGB in the availability zone.
func (c *Client) CreateVolume(ctx context.Context, name string, sizeGB int, zone string) (*Volume, error) {
	c.log.Info("create volume", "name", name, "size", sizeGB, "zone", zone)
	body := volumeCreateRequest{Volume: volumeCreate{Size: sizeGB, AvailabilityZone: zone, Name: name}}
	env, err := requestJSONWithBody[volumeEnvelope](ctx, c, "create_volume", http.MethodPost, c.volumeURL("volumes"), http.StatusAccepted, body)
	if err != nil {
		return nil, err
	}
	return &env.Volume, nil
}

// ShowVolume fetches one volume.
func (c *Client) ShowVolume(ctx context.Context, id string) (*Volume, error) {
	env, err := requestJSON[volumeEnvelope](ctx, c, "show_volume", http.MethodGet, c.volumeURL("volumes/"+id), http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &env.Volume, nil
}

// WaitVolume polls the volume every ResourcePoll until it reaches status.
func (c *Client) WaitVolume(ctx context.Context, id, status string) (*Volume, error) {
	return wait(ctx, c, "volume", id, status, c.resourcePolicy(), func(ctx context.Context, id string) (*Volume, string, error) {
		v, err := c.ShowVolume(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return v, v.Status, nil
	})
}

// AttachVolume attaches a volume to a server as /dev/vda.
func (c *Client) AttachVolume(ctx context.Context, serverID, volumeID string, deleteOnTermination bool) (*VolumeAttachment, error) {
	c.log.Info("attach volume", "volume", volumeID, "server", serverID)
	body := volumeAttachmentEnvelope{VolumeAttachment: VolumeAttachment{
		VolumeID:            volumeID,
		Device:              attachDevice,
		DeleteOnTermination: deleteOnTermination,
	}}
	url := c.computeURL("servers/" + serverID + "/os-volume_attachments")
	env, err := requestJSONWithBody[volumeAttachmentEnvelope](ctx, c, "attach_volume", http.MethodPost, url, http.StatusOK, body)
	if err != nil {
		return nil, err
	}
	return &env.VolumeAttachment, nil
}

// DetachVolume removes a volume attachment from a server. An attachment
// that no longer exists counts as detached.
func (c *Client) DetachVolume(ctx context.Context, serverID, volumeID string) error {
	c.log.Info("detach volume", "volume", volumeID, "server", serverID)
	url := c.computeURL("servers/" + serverID + "/os-volume_attachments/" + volumeID)
	_, err := c.requestStatus(ctx, "detach_volume", http.MethodDelete, url, http.StatusAccepted)
	if IsNotFound(err) {
		c.log.Info("volume already detached", "volume", volumeID, "server", serverID)
		return nil
	}
	return err
}

// SetVolumeBootable sets the bootable flag of a volume.
func (c *Client) SetVolumeBootable(ctx context.Context, volumeID string, flag bool) error {
	c.log.Info("set volume bootable", "volume", volumeID, "bootable", flag)
	body := setBootableRequest{SetBootable: bootable{Bootable: flag}}
	_, err := c.requestStatusWithBody(ctx, "set_volume_bootable", http.MethodPost, c.volumeURL("volumes/"+volumeID+"/action"), http.StatusOK, body)
	return err
}

// UploadVolumeToImage copies a volume into a new public raw image.
func (c *Client) UploadVolumeToImage(ctx context.Context, volumeID, imageName string) (*VolumeUploadResult, error) {
	c.log.Info("upload volume to image", "volume", volumeID, "image", imageName)
	body := volumeUploadRequest{Upload: volumeUpload{
		ImageName:       imageName,
		DiskFormat:      "raw",
		ContainerFormat: "bare",
		Visibility:      "public",
	}}
	res, err := requestJSONWithBody[volumeUploadResponse](ctx, c, "upload_volume_to_image", http.MethodPost, c.volumeURL("volumes/"+volumeID+"/action"), http.StatusAccepted, body)
	if err != nil {
		return nil, err
	}
	return &res.Upload, nil
}
