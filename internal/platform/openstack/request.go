package openstack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud/v2"
)

type response struct {
	status int
	header http.Header
	body   []byte
}

// apiHeaders pins the microversions every service call is written against.
var apiHeaders = map[string]string{
	headerVolumeAPI:  volumeAPIVersion,
	headerComputeAPI: computeAPIVersion,
}

// send performs one request through the provider client and fails with
// *StatusError unless the response status equals expected. The token header
// is attached by the provider once authentication stored it.
func (c *Client) send(ctx context.Context, operation, method, url string, expected int, body any, headers map[string]string) (*response, error) {
	start := time.Now()
	resp, err := c.roundTrip(ctx, method, url, expected, body, headers)
	c.metrics.RecordAPICall(operation, err, time.Since(start))
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, url string, expected int, body any, headers map[string]string) (*response, error) {
	c.log.V(1).Info("request", "method", method, "url", url)
	resp, err := c.provider.Request(ctx, method, url, &gophercloud.RequestOpts{
		JSONBody:         body,
		OkCodes:          []int{expected},
		MoreHeaders:      headers,
		KeepResponseBody: true,
	})
	if err != nil {
		var codeErr gophercloud.ErrUnexpectedResponseCode
		if errors.As(err, &codeErr) {
			return nil, &StatusError{
				Method:   method,
				URL:      url,
				Expected: expected,
				Actual:   codeErr.Actual,
				Body:     strings.TrimSpace(string(codeErr.Body)),
			}
		}
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, url, err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// expect sends an authenticated request and logs failures.
func (c *Client) expect(ctx context.Context, operation, method, url string, expected int, body any) (*response, error) {
	resp, err := c.send(ctx, operation, method, url, expected, body, apiHeaders)
	if err != nil {
		c.log.Error(err, "request failed", "operation", operation)
		return nil, err
	}
	return resp, nil
}

// requestStatus sends a request without a body and returns the status.
func (c *Client) requestStatus(ctx context.Context, operation, method, url string, expected int) (int, error) {
	resp, err := c.expect(ctx, operation, method, url, expected, nil)
	if err != nil {
		return 0, err
	}
	return resp.status, nil
}

// requestStatusWithBody sends body as JSON and returns the status.
func (c *Client) requestStatusWithBody(ctx context.Context, operation, method, url string, expected int, body any) (int, error) {
	resp, err := c.expect(ctx, operation, method, url, expected, body)
	if err != nil {
		return 0, err
	}
	return resp.status, nil
}

// requestJSON sends a request without a body and decodes the response into T.
func requestJSON[T any](ctx context.Context, c *Client, operation, method, url string, expected int) (*T, error) {
	resp, err := c.expect(ctx, operation, method, url, expected, nil)
	if err != nil {
		return nil, err
	}
	return decode[T](method, url, resp.body)
}

// requestJSONWithBody sends body as JSON and decodes the response into T.
func requestJSONWithBody[T, B any](ctx context.Context, c *Client, operation, method, url string, expected int, body B) (*T, error) {
	resp, err := c.expect(ctx, operation, method, url, expected, body)
	if err != nil {
		return nil, err
	}
	return decode[T](method, url, resp.body)
}

func decode[T any](method, url string, data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrDecode, method, url, err)
	}
	return &out, nil
}
