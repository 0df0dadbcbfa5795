package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Static errors for local storage.
var (
	// ErrMirrorNotConfigured is returned when a file is published without a
	// remote mirror configured.
	ErrMirrorNotConfigured = errors.New("dataset mirror is not configured")
	// ErrOutsideTempDir is returned for paths that do not belong to the scratch directory.
	ErrOutsideTempDir = errors.New("path is outside the temp directory")
)

// LocalStorage implements the Storage interface using local disk.
// Scratch files live in a single directory; there is no remote mirror
// unless wrapped with S3Storage.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a new LocalStorage instance rooted at tempDir.
// If tempDir is empty, a folder under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "speech-dataset-maker")
	}

	abs, err := filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: abs}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// SaveTemp writes data to a new file in the temp directory and returns its
// path. The extension of name is kept so tools that sniff by suffix (ffmpeg)
// still recognise the file; the rest of name prefixes a unique suffix.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)

	f, err := os.CreateTemp(s.tempDir, base+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	path := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return path, nil
}

// LoadTemp opens a file previously returned by SaveTemp.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	if !s.owns(path) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideTempDir, path)
	}

	f, err := os.Open(path) // #nosec G304 - path is confined to tempDir
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}

	return f, nil
}

// CleanupTemp removes the given scratch files. Empty paths and files that are
// already gone are skipped; the first other failure is returned after every
// path has been tried.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		if p == "" {
			continue
		}
		if !s.owns(p) {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s", ErrOutsideTempDir, p)
			}
			continue
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
		}
	}
	return firstErr
}

// Publish is not supported by LocalStorage and returns ErrMirrorNotConfigured.
func (s *LocalStorage) Publish(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrMirrorNotConfigured
}

// owns reports whether path lies directly inside the temp directory.
func (s *LocalStorage) owns(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == s.tempDir
}

// Verify interface implementation at compile time.
var _ Storage = (*LocalStorage)(nil)
