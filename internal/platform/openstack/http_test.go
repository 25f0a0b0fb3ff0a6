package openstack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wangkuntian/pipeman/internal/config"
)

const testToken = "gAAAAAtest-token"

// fakeCloud is an httptest server that mocks the OpenStack service APIs
// under one host, each service under its own path prefix.
type fakeCloud struct {
	server *httptest.Server
	mux    *http.ServeMux

	mu       sync.Mutex
	requests []*http.Request
	auth     http.HandlerFunc
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{mux: http.NewServeMux()}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Clone(context.Background()))
		f.mu.Unlock()
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)

	f.handleFunc("POST /identity/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		auth := f.auth
		f.mu.Unlock()
		if auth != nil {
			auth(w, r)
			return
		}
		w.Header().Set(headerSubjectToken, testToken)
		jsonResponse(w, http.StatusCreated, map[string]any{"token": map[string]any{}})
	})
	return f
}

// onAuth replaces the default token response.
func (f *fakeCloud) onAuth(handler http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = handler
}

func (f *fakeCloud) handleFunc(pattern string, handler http.HandlerFunc) {
	f.mux.HandleFunc(pattern, handler)
}

func (f *fakeCloud) endpoints() Endpoints {
	return Endpoints{
		Identity: f.server.URL + "/identity",
		Network:  f.server.URL + "/network/v2.0",
		Image:    f.server.URL + "/image/v2",
		Compute:  f.server.URL + "/compute/v2.1",
		Volume:   f.server.URL + "/volume/v3/project-id",
	}
}

func (f *fakeCloud) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func testConfig() *config.OpenStackConfig {
	return &config.OpenStackConfig{
		Host:                "controller",
		User:                "admin",
		Password:            "admin-pass",
		AuthURL:             "http://controller:5000/v3",
		Project:             "admin",
		ProjectID:           "project-id",
		Domain:              "Default",
		Flavor:              "flavor-8c16g",
		EmptyDiskFlavor:     "flavor-empty",
		ExternalNetwork:     "ext-net-id",
		ExternalNetworkName: "public",
		InternalNetwork:     "int-net-id",
	}
}

func testTimeouts() *config.Timeouts {
	return &config.Timeouts{
		ResourcePoll:         3 * time.Second,
		ServerPoll:           5 * time.Second,
		ServerPollMaxWait:    1200 * time.Second,
		SessionRetry:         5 * time.Second,
		SessionRetryMaxWait:  600 * time.Second,
		SSHDialTimeout:       time.Second,
		HTTPTimeout:          5 * time.Second,
		PortCleanupBatchSize: 2,
	}
}

// sleepRecorder records requested waits without sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func (f *fakeCloud) client(t *testing.T, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	sleeper := &sleepRecorder{}
	all := append([]Option{
		WithEndpoints(f.endpoints()),
		WithTimeouts(testTimeouts()),
		WithSleeper(sleeper.sleep),
	}, opts...)
	c, err := New(context.Background(), testConfig(), all...)
	require.NoError(t, err)
	return c, sleeper
}

// jsonResponse writes a JSON response with the given status code and body.
func jsonResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeBody decodes a request body into a generic map.
func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
