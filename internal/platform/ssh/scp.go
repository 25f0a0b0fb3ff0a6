package ssh

import (
	"context"
	"fmt"
	"os"

	scp "github.com/bramvdbogaerde/go-scp"
)

const uploadMode = "0644"

// Upload copies localPath to remotePath over SCP on the session's
// connection. The remote file gets mode 0644 and exactly the local file's size.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string) error {
	s.log.Info("upload", "file", localPath, "remote", remotePath)

	f, err := os.Open(localPath) // #nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	client, err := scp.NewClientBySSH(s.client)
	if err != nil {
		return fmt.Errorf("failed to create scp client on %s: %w", s.host, err)
	}
	defer client.Close()

	if err := client.CopyFromFile(ctx, *f, remotePath, uploadMode); err != nil {
		if code, cerr := exitCode(err); cerr == nil && code != 0 {
			return &ExecError{Host: s.host, Command: "scp -qt " + remotePath, ExitCode: code}
		}
		return fmt.Errorf("failed to upload %s to %s:%s: %w", localPath, s.host, remotePath, err)
	}

	s.log.Info("upload success", "file", localPath, "remote", remotePath)
	return nil
}
