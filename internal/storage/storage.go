// Package storage provides scratch storage for takes in flight and an
// optional remote mirror for finished dataset files.
// It defines the Storage interface (port) and implementations for local disk
// and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for take scratch files and dataset mirroring.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish copies a finished dataset file to the remote mirror under key
	// and returns its URL. Returns ErrMirrorNotConfigured when there is no
	// mirror.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
