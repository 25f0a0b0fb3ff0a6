package ssh

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// execHandler emulates a remote shell for one exec request.
type execHandler func(cmd string, stdin io.Reader, stdout, stderr io.Writer) int

type uploadedFile struct {
	mode string
	size int64
	name string
	data []byte
}

// testServer is an in-process SSH server accepting password logins and
// exec requests, with a minimal SCP sink.
type testServer struct {
	listener     net.Listener
	config       *ssh.ServerConfig
	handler      execHandler
	authFailures atomic.Int32

	mu       sync.Mutex
	commands []string
	files    map[string]uploadedFile
}

func newTestServer(t *testing.T, password string, handler execHandler) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	ts := &testServer{
		handler: handler,
		files:   make(map[string]uploadedFile),
	}
	ts.config = &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if ts.authFailures.Load() > 0 {
				ts.authFailures.Add(-1)
				return nil, fmt.Errorf("host still booting")
			}
			if string(pass) != password {
				return nil, fmt.Errorf("password rejected")
			}
			return nil, nil
		},
	}
	ts.config.AddHostKey(signer)

	ts.listener, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.listener.Close() })

	go ts.serve()
	return ts
}

func (ts *testServer) port() int {
	return ts.listener.Addr().(*net.TCPAddr).Port
}

func (ts *testServer) sessionConfig(password string) *Config {
	return &Config{
		Host:     "127.0.0.1",
		Port:     ts.port(),
		User:     "root",
		Password: password,
	}
}

func (ts *testServer) ranCommands() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.commands...)
}

func (ts *testServer) file(path string) (uploadedFile, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	f, ok := ts.files[path]
	return f, ok
}

func (ts *testServer) serve() {
	for {
		conn, err := ts.listener.Accept()
		if err != nil {
			return
		}
		go ts.handleConn(conn)
	}
}

func (ts *testServer) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, ts.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer func() { _ = sconn.Close() }()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go ts.handleSession(ch, creqs)
	}
}

func (ts *testServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()

	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		code := ts.run(payload.Command, ch)
		_ = ch.CloseWrite()
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
		return
	}
}

func (ts *testServer) run(cmd string, ch ssh.Channel) int {
	ts.mu.Lock()
	ts.commands = append(ts.commands, cmd)
	ts.mu.Unlock()

	if target, ok := strings.CutPrefix(cmd, "scp -qt "); ok {
		if unquoted, err := strconv.Unquote(target); err == nil {
			target = unquoted
		}
		return ts.scpSink(target, ch)
	}
	if ts.handler == nil {
		return 0
	}
	return ts.handler(cmd, ch, ch, ch.Stderr())
}

func (ts *testServer) scpSink(target string, ch ssh.Channel) int {
	r := bufio.NewReader(ch)
	if strings.Contains(target, "denied") {
		_, _ = ch.Write([]byte("\x01scp: " + target + ": Permission denied\n"))
		return 1
	}
	_, _ = ch.Write([]byte{0})

	header, err := r.ReadString('\n')
	if err != nil {
		return 1
	}
	fields := strings.Fields(strings.TrimPrefix(header, "C"))
	if len(fields) != 3 {
		_, _ = ch.Write([]byte("\x02bad header\n"))
		return 1
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 1
	}
	_, _ = ch.Write([]byte{0})

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return 1
	}
	if b, err := r.ReadByte(); err != nil || b != 0 {
		return 1
	}
	_, _ = ch.Write([]byte{0})
	_, _ = io.Copy(io.Discard, r)

	ts.mu.Lock()
	ts.files[target] = uploadedFile{mode: fields[0], size: size, name: fields[2], data: data}
	ts.mu.Unlock()
	return 0
}
