package ssh

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"

	"github.com/wangkuntian/pipeman/internal/command"
	"github.com/wangkuntian/pipeman/internal/util/retry"
)

const (
	defaultPort         = 22
	defaultDialTimeout  = 10 * time.Second
	defaultRetryDelay   = 5 * time.Second
	defaultRetryMaxWait = 600 * time.Second
	maxLogLine          = 1024 * 1024
)

// Config holds SSH session configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	// DialTimeout bounds the TCP connect and handshake.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// RetryDelay and RetryMaxWait drive AcquireWithRetry.
	// If zero, 5s and 600s are used.
	RetryDelay   time.Duration
	RetryMaxWait time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used (hosts are freshly provisioned).
	HostKeyCallback ssh.HostKeyCallback

	// Commands supplies the fixed shell pipelines. If nil, command.NewRegistry() is used.
	Commands *command.Registry

	Logger logr.Logger
	Sleep  retry.Sleeper
}

func (c *Config) withDefaults() (*Config, error) {
	if c == nil {
		return nil, errors.New("config cannot be nil")
	}
	if c.Host == "" {
		return nil, errors.New("config host cannot be empty")
	}
	if c.User == "" {
		return nil, errors.New("config user cannot be empty")
	}

	// Copy config to avoid mutating caller's struct
	cfg := *c
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.RetryMaxWait == 0 {
		cfg.RetryMaxWait = defaultRetryMaxWait
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // hosts are created by this run
	}
	if cfg.Commands == nil {
		cfg.Commands = command.NewRegistry()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	return &cfg, nil
}

// Addr is host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ExecError reports a command that exited non-zero.
type ExecError struct {
	Host     string
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec '%s' on %s failed with exit code %d\n %s", e.Command, e.Host, e.ExitCode, e.Stderr)
}

// Session is one authenticated connection to a host.
type Session struct {
	host     string
	client   *ssh.Client
	commands *command.Registry
	log      logr.Logger
}

// Connect dials, handshakes and authenticates once. It does not retry.
func Connect(ctx context.Context, cfg *Config) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = cfg.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: cfg.HostKeyCallback,
		Timeout:         cfg.DialTimeout,
	}

	addr := cfg.Addr()
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// The handshake has no context parameter; bound it with a deadline.
	_ = conn.SetDeadline(time.Now().Add(cfg.DialTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &Session{
		host:     cfg.Host,
		client:   ssh.NewClient(c, chans, reqs),
		commands: cfg.Commands,
		log:      cfg.Logger.WithValues("host", cfg.Host),
	}, nil
}

// AcquireWithRetry calls Connect every RetryDelay until it succeeds. Once the
// accumulated wait reaches RetryMaxWait it returns a *retry.TimeoutError.
func AcquireWithRetry(ctx context.Context, cfg *Config) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger.WithValues("host", cfg.Host)
	log.Info("try connect", "addr", cfg.Addr())

	var session *Session
	policy := retry.Fixed(cfg.RetryDelay).WithMaxWait(cfg.RetryMaxWait)
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		s, err := Connect(ctx, cfg)
		if err != nil {
			return err
		}
		session = s
		return nil
	},
		retry.WithSleeper(cfg.Sleep),
		retry.WithNotify(func(_ int, wait time.Duration, err error) {
			log.Info("waiting to get remote session", "wait", wait, "error", err.Error())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect remote %s: %w", cfg.Addr(), err)
	}

	log.Info("connect success")
	return session, nil
}

// Host is the address the session was opened to.
func (s *Session) Host() string {
	return s.host
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.client.Close()
}

// Execute runs command to completion and returns its stdout and exit code.
// Stderr is only reported, trimmed, inside an *ExecError when the exit code
// is non-zero.
func (s *Session) Execute(ctx context.Context, cmd string) (string, int, error) {
	s.log.Info("exec", "command", cmd)

	session, err := s.client.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("failed to create SSH session on %s: %w", s.host, err)
	}
	defer func() { _ = session.Close() }()
	stop := closeOnDone(ctx, session)
	defer stop()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	code, err := exitCode(session.Run(cmd))
	if err != nil {
		return stdout.String(), code, fmt.Errorf("exec '%s' on %s: %w", cmd, s.host, err)
	}
	s.log.V(1).Info("exit code", "command", cmd, "code", code)

	if code != 0 {
		execErr := &ExecError{Host: s.host, Command: cmd, ExitCode: code, Stderr: strings.TrimSpace(stderr.String())}
		s.log.Error(execErr, "exec failed")
		return stdout.String(), code, execErr
	}
	return stdout.String(), code, nil
}

// ExecuteStreaming runs a long command and logs its output line by line as
// it arrives. With stderrOnly the error stream is logged and stdout is
// discarded; otherwise stdout is logged and stderr is kept for the error
// returned on a non-zero exit.
func (s *Session) ExecuteStreaming(ctx context.Context, cmd string, stderrOnly bool) error {
	s.log.Info("exec", "command", cmd, "stream", streamName(stderrOnly))

	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session on %s: %w", s.host, err)
	}
	defer func() { _ = session.Close() }()
	stop := closeOnDone(ctx, session)
	defer stop()

	var detail bytes.Buffer
	var stream io.Reader
	if stderrOnly {
		stream, err = session.StderrPipe()
	} else {
		stream, err = session.StdoutPipe()
		session.Stderr = &detail
	}
	if err != nil {
		return fmt.Errorf("failed to open output stream on %s: %w", s.host, err)
	}

	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start '%s' on %s: %w", cmd, s.host, err)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.drain(stream)
	}()
	<-drained

	code, err := exitCode(session.Wait())
	if err != nil {
		return fmt.Errorf("exec '%s' on %s: %w", cmd, s.host, err)
	}
	if code != 0 {
		execErr := &ExecError{Host: s.host, Command: cmd, ExitCode: code, Stderr: strings.TrimSpace(detail.String())}
		s.log.Error(execErr, "exec failed")
		return execErr
	}
	return nil
}

func (s *Session) drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		s.log.Info(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		s.log.Error(err, "output stream interrupted")
		// Keep reading so the remote side is never blocked on a full window.
		_, _ = io.Copy(io.Discard, r)
	}
}

// NetworkInterfaces returns the first two interfaces whose names begin with
// "en". A host with a single such interface returns it twice.
func (s *Session) NetworkInterfaces(ctx context.Context) (string, string, error) {
	out, _, err := s.Execute(ctx, s.commands.ListNICs())
	if err != nil {
		return "", "", err
	}
	return parseInterfaces(out)
}

func parseInterfaces(out string) (string, string, error) {
	var nics []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			nics = append(nics, name)
		}
	}
	switch len(nics) {
	case 0:
		return "", "", errors.New("no network interface found")
	case 1:
		return nics[0], nics[0], nil
	default:
		return nics[0], nics[1], nil
	}
}

// SetHostname sets the host name. Failures are logged, not returned.
func (s *Session) SetHostname(ctx context.Context, name string) {
	s.log.Info("set hostname", "name", name)
	if _, _, err := s.Execute(ctx, s.commands.SetHostname(name)); err != nil {
		s.log.Error(err, "set hostname failed", "name", name)
	}
}

// Reboot asks the host to restart. The connection usually drops before an
// exit status arrives, so failures are only logged.
func (s *Session) Reboot(ctx context.Context) {
	s.log.Info("reboot")
	if _, _, err := s.Execute(ctx, s.commands.Reboot()); err != nil {
		s.log.V(1).Info("reboot returned an error", "error", err.Error())
	}
}

// exitCode maps a Run/Wait error to an exit code. A nil error is returned
// for both success and a clean non-zero exit.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, err
}

// closeOnDone closes the session when ctx ends so blocked reads return.
func closeOnDone(ctx context.Context, session *ssh.Session) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func streamName(stderrOnly bool) string {
	if stderrOnly {
		return "stderr"
	}
	return "stdout"
}
