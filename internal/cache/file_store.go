package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaxPathLength is the longest artifact path the store will construct.
// Paths that would exceed it disable caching for that call instead of
// failing the invocation.
const MaxPathLength = 2048

// ArtifactExt is the file extension of persisted artifacts.
const ArtifactExt = ".wav"

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// ErrPathTooLong indicates the cache directory plus artifact name exceeds
// MaxPathLength.
var ErrPathTooLong = errors.New("cache path exceeds maximum length")

// DerivePath computes the artifact path for key under dir. It is a pure
// function so the length-limit policy is testable in isolation.
func DerivePath(dir, key string) (string, error) {
	path := filepath.Join(dir, key+ArtifactExt)
	if len(path) > MaxPathLength {
		return "", fmt.Errorf("%w: %d characters", ErrPathTooLong, len(path))
	}

	return path, nil
}

// FileStore persists artifacts as files named by fingerprint under a cache
// directory. Artifacts are written once and never mutated or expired here;
// eviction, if any, belongs to the host.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first upload, not here, so a store over a read-only hierarchy can still
// serve lookups.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Exists reports whether an artifact for key is present. An overlong path
// reads as absent: caching is silently skipped for that call.
func (s *FileStore) Exists(_ context.Context, key string) bool {
	path, pathErr := DerivePath(s.dir, key)
	if pathErr != nil {
		return false
	}

	_, statErr := os.Stat(path)

	return statErr == nil
}

// Download reads the artifact for key.
func (s *FileStore) Download(_ context.Context, key string) ([]byte, error) {
	path, pathErr := DerivePath(s.dir, key)
	if pathErr != nil {
		return nil, pathErr
	}

	data, readErr := os.ReadFile(path) // #nosec G304 -- path derived from dir+hex key
	if readErr != nil {
		return nil, fmt.Errorf("failed to read cached artifact %s: %w", path, readErr)
	}

	return data, nil
}

// Upload persists the artifact for key. An overlong path skips the write
// without error; any other failure is returned for the caller to log,
// never to abort playback on.
func (s *FileStore) Upload(_ context.Context, key string, data []byte) error {
	path, pathErr := DerivePath(s.dir, key)
	if pathErr != nil {
		return nil
	}

	mkdirErr := os.MkdirAll(s.dir, dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", s.dir, mkdirErr)
	}

	writeErr := os.WriteFile(path, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write cached artifact %s: %w", path, writeErr)
	}

	return nil
}
