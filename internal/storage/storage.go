package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	cfg "github.com/templui/stravasync/internal/config"
)

var ErrInvalidPath = errors.New("invalid storage path")

// Storage defines the interface for blob storage operations.
type Storage interface {
	// Save stores a blob at the given path, replacing any existing one.
	Save(ctx context.Context, path string, r io.Reader) error

	// Delete removes the blob at path. Missing blobs are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// URL returns the absolute URL the blob is served from.
	URL(path string) string
}

// New builds the backend selected by STORAGE_BACKEND.
func New(c *cfg.Config) (Storage, error) {
	switch c.StorageBackend {
	case "s3":
		slog.Info("initializing S3 storage",
			"bucket", c.S3Bucket,
			"region", c.S3Region,
			"endpoint", c.S3Endpoint,
		)
		return NewS3Storage(S3Config{
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3Endpoint,
			PublicURL: c.S3PublicURL,
		})
	case "local", "":
		slog.Info("initializing local storage", "dir", c.LocalStorageDir)
		return NewLocalStorage(c.LocalStorageDir, c.AppURL+c.LocalStoragePrefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}
