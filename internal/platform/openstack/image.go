package openstack

import (
	"context"
	"net/http"
)

// ImageActive is the glance status of a usable image.
const ImageActive = "active"

// ListImages lists every image visible to the project.
func (c *Client) ListImages(ctx context.Context) ([]Image, error) {
	c.log.Info("list images")
	list, err := requestJSON[imageList](ctx, c, "list_images", http.MethodGet, c.imageURL("images"), http.StatusOK)
	if err != nil {
		return nil, err
	}
	return list.Images, nil
}

// ShowImage fetches one image.
func (c *Client) ShowImage(ctx context.Context, id string) (*Image, error) {
	return requestJSON[Image](ctx, c, "show_image", http.MethodGet, c.imageURL("images/"+id), http.StatusOK)
}

// DeleteImage deletes an image.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	c.log.Info("delete image", "image", id)
	_, err := c.requestStatus(ctx, "delete_image", http.MethodDelete, c.imageURL("images/"+id), http.StatusNoContent)
	return err
}

// WaitImage polls the image every ResourcePoll until it reaches status.
func (c *Client) WaitImage(ctx context.Context, id, status string) (*Image, error) {
	return wait(ctx, c, "image", id, status, c.resourcePolicy(), func(ctx context.Context, id string) (*Image, string, error) {
		img, err := c.ShowImage(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return img, img.Status, nil
	})
}
