package s3

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/util/naming"
)

// Uploader is the subset of Client the Archiver needs.
type Uploader interface {
	EnsureBucket(ctx context.Context, bucketName string) error
	PutObject(ctx context.Context, bucketName, key, contentType string, data []byte, meta map[string]string) error
}

// Archiver stores run artifacts under <prefix>/<timestamp>/.
type Archiver struct {
	store  Uploader
	bucket string
	prefix string
	runID  string
	log    logr.Logger
}

// NewArchiver builds an Archiver from the archive settings. It returns nil
// when archival is disabled; a nil *Archiver archives nothing.
func NewArchiver(cfg config.ArchiveConfig, runID string, log logr.Logger) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := NewClient(cfg.Endpoint, cfg.Region, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	return newArchiver(client, cfg.Bucket, cfg.Prefix, runID, log), nil
}

func newArchiver(store Uploader, bucket, prefix, runID string, log logr.Logger) *Archiver {
	return &Archiver{store: store, bucket: bucket, prefix: prefix, runID: runID, log: log}
}

// ArchiveAs uploads the local file as name and returns its object key.
func (a *Archiver) ArchiveAs(ctx context.Context, timestamp, name, localPath string) (string, error) {
	if a == nil {
		return "", nil
	}
	data, err := os.ReadFile(localPath) // #nosec G304 -- path built by the run
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	if err := a.store.EnsureBucket(ctx, a.bucket); err != nil {
		return "", err
	}

	key := naming.ArchiveKey(a.prefix, timestamp, name)
	meta := map[string]string{"run-id": a.runID, "timestamp": timestamp}
	if err := a.store.PutObject(ctx, a.bucket, key, "text/plain", data, meta); err != nil {
		return "", err
	}
	a.log.Info("archived", "bucket", a.bucket, "key", key)
	return key, nil
}
