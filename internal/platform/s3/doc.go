// Package s3 provides a client for S3-compatible object storage such as
// Ceph RGW or MinIO.
//
// It is used to archive the rendered deploy inventory of each run under
// <prefix>/<timestamp>/. Archival is best-effort: callers log failures
// instead of aborting the run.
package s3
