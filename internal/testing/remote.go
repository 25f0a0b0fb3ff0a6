package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/wangkuntian/pipeman/internal/platform/ssh"
)

// Upload is one file copied through a FakeRemote.
type Upload struct {
	Local  string
	Remote string
	Data   []byte
}

// FakeRemote is a scriptable session. Commands not registered with Respond
// succeed with empty output.
type FakeRemote struct {
	mu sync.Mutex

	host      string
	outputs   map[string]string
	failures  map[string][]error
	primary   string
	secondary string
	nicErr    error

	commands []string
	streamed []string
	uploads  []Upload
	hostname string
	reboots  int
	closed   bool
}

// NewFakeRemote creates a session for host with interfaces ens3 and ens4.
func NewFakeRemote(host string) *FakeRemote {
	return &FakeRemote{
		host:      host,
		outputs:   make(map[string]string),
		failures:  make(map[string][]error),
		primary:   "ens3",
		secondary: "ens4",
	}
}

// Respond sets the stdout of cmd.
func (r *FakeRemote) Respond(cmd, stdout string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[cmd] = stdout
}

// FailNext makes the next len(errs) runs of cmd fail with errs in order.
func (r *FakeRemote) FailNext(cmd string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[cmd] = append(r.failures[cmd], errs...)
}

// SetInterfaces sets the interfaces reported by NetworkInterfaces.
func (r *FakeRemote) SetInterfaces(primary, secondary string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary, r.secondary, r.nicErr = primary, secondary, err
}

// Commands returns the commands run through Execute.
func (r *FakeRemote) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// Streamed returns the commands run through ExecuteStreaming.
func (r *FakeRemote) Streamed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.streamed...)
}

// Uploads returns the uploaded files.
func (r *FakeRemote) Uploads() []Upload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Upload(nil), r.uploads...)
}

// Hostname returns the last hostname set.
func (r *FakeRemote) Hostname() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostname
}

// Reboots returns how many times Reboot was called.
func (r *FakeRemote) Reboots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reboots
}

// Closed reports whether Close was called.
func (r *FakeRemote) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *FakeRemote) nextFailure(cmd string) error {
	errs := r.failures[cmd]
	if len(errs) == 0 {
		return nil
	}
	r.failures[cmd] = errs[1:]
	return errs[0]
}

// Host implements provisioning.Remote.
func (r *FakeRemote) Host() string { return r.host }

// Execute implements provisioning.Remote.
func (r *FakeRemote) Execute(_ context.Context, cmd string) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	if err := r.nextFailure(cmd); err != nil {
		return "", 1, err
	}
	return r.outputs[cmd], 0, nil
}

// ExecuteStreaming implements provisioning.Remote.
func (r *FakeRemote) ExecuteStreaming(_ context.Context, cmd string, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamed = append(r.streamed, cmd)
	return r.nextFailure(cmd)
}

// Upload implements provisioning.Remote. The local file is read at once.
func (r *FakeRemote) Upload(_ context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.nextFailure("upload " + remotePath); err != nil {
		return err
	}
	r.uploads = append(r.uploads, Upload{Local: localPath, Remote: remotePath, Data: data})
	return nil
}

// NetworkInterfaces implements provisioning.Remote.
func (r *FakeRemote) NetworkInterfaces(context.Context) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primary, r.secondary, r.nicErr
}

// SetHostname implements provisioning.Remote.
func (r *FakeRemote) SetHostname(_ context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostname = name
}

// Reboot implements provisioning.Remote.
func (r *FakeRemote) Reboot(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reboots++
}

// Close implements provisioning.Remote.
func (r *FakeRemote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// ExecFailure builds the error a session returns for a non-zero exit.
func ExecFailure(host, cmd string, code int, stderr string) error {
	return &ssh.ExecError{Host: host, Command: cmd, ExitCode: code, Stderr: stderr}
}

// ErrUnreachable is returned by FakeConnector for hosts marked unreachable.
var ErrUnreachable = errors.New("host unreachable")

// FakeConnector hands out one FakeRemote per host. The same FakeRemote is
// returned for every acquisition of a host so tests can inspect it afterwards.
type FakeConnector struct {
	mu          sync.Mutex
	remotes     map[string]*FakeRemote
	unreachable map[string]bool
	acquired    []string
}

// NewFakeConnector creates an empty connector.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{
		remotes:     make(map[string]*FakeRemote),
		unreachable: make(map[string]bool),
	}
}

// Remote returns the session of host, creating it on first use.
func (c *FakeConnector) Remote(host string) *FakeRemote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote(host)
}

func (c *FakeConnector) remote(host string) *FakeRemote {
	r, ok := c.remotes[host]
	if !ok {
		r = NewFakeRemote(host)
		c.remotes[host] = r
	}
	return r
}

// Unreachable makes every acquisition of host fail.
func (c *FakeConnector) Unreachable(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unreachable[host] = true
}

// Acquired returns "user@host:port" for every acquisition, in order.
func (c *FakeConnector) Acquired() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.acquired...)
}

// Acquire returns the host's FakeRemote. The result satisfies provisioning.Remote.
func (c *FakeConnector) Acquire(ctx context.Context, host string, port int, user, _ string) (*FakeRemote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired = append(c.acquired, fmt.Sprintf("%s@%s:%d", user, host, port))
	if c.unreachable[host] {
		return nil, fmt.Errorf("%s: %w", host, ErrUnreachable)
	}
	r := c.remote(host)
	r.mu.Lock()
	r.closed = false
	r.mu.Unlock()
	return r, nil
}
