package openstack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/gophercloud/gophercloud/v2"

	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/metrics"
	"github.com/wangkuntian/pipeman/internal/util/retry"
)

const (
	headerSubjectToken = "X-Subject-Token"
	headerVolumeAPI    = "OpenStack-API-Version"
	headerComputeAPI   = "X-OpenStack-Nova-API-Version"

	volumeAPIVersion  = "volume 3.62"
	computeAPIVersion = "2.79"
)

// Endpoints are the base URLs of each service, without a trailing slash.
type Endpoints struct {
	Identity string
	Network  string
	Image    string
	Compute  string
	Volume   string
}

// DefaultEndpoints derives the service URLs from the controller host using
// the standard service ports.
func DefaultEndpoints(cfg *config.OpenStackConfig) Endpoints {
	base := "http://" + cfg.Host
	return Endpoints{
		Identity: strings.TrimSuffix(cfg.AuthURL, "/"),
		Network:  base + ":9696/v2.0",
		Image:    base + ":9292/v2",
		Compute:  base + ":8774/v2.1",
		Volume:   fmt.Sprintf("%s:8776/v3/%s", base, cfg.ProjectID),
	}
}

// Client is an authenticated OpenStack API client.
type Client struct {
	httpClient *http.Client
	provider   *gophercloud.ProviderClient
	endpoints  Endpoints
	networks   networks
	timeouts   *config.Timeouts
	log        logr.Logger
	sleep      retry.Sleeper
	metrics    *metrics.Recorder
}

type networks struct {
	external     string
	externalName string
	internal     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeouts sets custom poll intervals and ceilings.
func WithTimeouts(t *config.Timeouts) Option {
	return func(c *Client) {
		c.timeouts = t
	}
}

// WithEndpoints overrides the derived service URLs (useful for testing).
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithSleeper replaces the timer used between polls.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// WithMetrics records every request and poll attempt.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New authenticates against the identity service and returns a client
// carrying the token for the rest of the run.
func New(ctx context.Context, cfg *config.OpenStackConfig, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openstack config cannot be nil")
	}
	c := &Client{
		endpoints: DefaultEndpoints(cfg),
		networks: networks{
			external:     cfg.ExternalNetwork,
			externalName: cfg.ExternalNetworkName,
			internal:     cfg.InternalNetwork,
		},
		log:   logr.Discard(),
		sleep: retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeouts == nil {
		c.timeouts = config.LoadTimeouts()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeouts.HTTPTimeout}
	}
	// No ReauthFunc: the token is acquired once per run and never refreshed.
	c.provider = &gophercloud.ProviderClient{
		IdentityEndpoint: c.endpoints.Identity,
		HTTPClient:       *c.httpClient,
	}
	c.provider.UseTokenLock()

	token, err := c.authenticate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.provider.SetToken(token)
	return c, nil
}

// authenticate exchanges user credentials for a project-scoped token.
func (c *Client) authenticate(ctx context.Context, cfg *config.OpenStackConfig) (string, error) {
	url := c.endpoints.Identity + "/auth/tokens"
	c.log.Info("authenticate", "url", url, "user", cfg.User, "project", cfg.Project)

	body := newAuthRequest(cfg.User, cfg.Password, cfg.Domain, cfg.Project)
	resp, err := c.send(ctx, "authenticate", http.MethodPost, url, http.StatusCreated, body, nil)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return "", fmt.Errorf("%w: %s answered %d: %s", ErrAuthentication, url, statusErr.Actual, statusErr.Body)
		}
		return "", err
	}
	token := resp.header.Get(headerSubjectToken)
	if token == "" {
		return "", fmt.Errorf("%w: no %s header in response from %s (status %d): %s",
			ErrAuthentication, headerSubjectToken, url, resp.status, strings.TrimSpace(string(resp.body)))
	}
	c.log.V(1).Info("token acquired")
	return token, nil
}

// ExternalAddress returns the server's first address on the external network.
func (c *Client) ExternalAddress(s *Server) (string, error) {
	return s.Address(c.networks.externalName)
}

func (c *Client) networkURL(resource string) string {
	return c.endpoints.Network + "/" + resource
}

func (c *Client) imageURL(resource string) string {
	return c.endpoints.Image + "/" + resource
}

func (c *Client) computeURL(resource string) string {
	return c.endpoints.Compute + "/" + resource
}

func (c *Client) volumeURL(resource string) string {
	return c.endpoints.Volume + "/" + resource
}
