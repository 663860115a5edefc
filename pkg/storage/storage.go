// Package storage defines the FileStore interface for reading and writing
// files. It abstracts the underlying storage backend so that processed
// datasets can be written to local disk or an S3-compatible object store
// without changing application code.
//
// [ForURL] picks the backend from a directory reference: s3://bucket/prefix
// routes to S3, anything else to the local filesystem.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing.
	// If the file already exists it is truncated.
	// Parent directories are created automatically.
	// The caller must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file.
	// If the file does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// ForURL returns the file store serving a directory reference.
//
// References of the form s3://bucket/prefix are served by S3 using the
// ambient AWS configuration (environment, shared config, instance
// role). Anything else is treated as a local directory, which is
// created if missing.
func ForURL(ctx context.Context, dir string) (FileStore, error) {
	bucket, prefix, ok := ParseS3URL(dir)
	if !ok {
		return NewLocal(dir)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: aws config: %w", err)
	}
	return NewS3(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// ParseS3URL splits an s3://bucket/prefix reference into bucket and
// prefix. ok is false when the reference is not an S3 URL.
func ParseS3URL(dir string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(dir, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}
