// Package openstack is a small REST client for the OpenStack services the
// deploy pipeline drives: keystone for the token, glance for images,
// cinder for volumes and snapshots, nova for servers and neutron for ports.
//
// # Requests
//
// Every call goes through one of four generic helpers in request.go. A call
// succeeds only when the response status equals the expected code exactly;
// anything else becomes a *StatusError carrying the response body. JSON
// decode failures wrap ErrDecode.
//
// # Polling
//
// PollUntil fetches a resource until its status matches. Image, volume and
// snapshot waits poll every config.Timeouts.ResourcePoll with no ceiling.
// Server waits back off linearly from config.Timeouts.ServerPoll and give up
// with a *retry.TimeoutError once the accumulated wait reaches
// config.Timeouts.ServerPollMaxWait.
//
// # Authentication
//
// New exchanges the configured credentials for a token once. Tokens are not
// refreshed during a run.
package openstack
