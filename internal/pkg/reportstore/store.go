// Package reportstore persists generated reconciliation reports. Reports go
// to S3-compatible object storage in production and to a local directory in
// development.
package reportstore

import (
	"context"
	"os"
	"path/filepath"
)

// Store persists one named report and returns its location.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// LocalStore writes reports under a directory on disk.
type LocalStore struct {
	Dir string
}

// NewLocalStore creates a local report store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

func (s *LocalStore) Save(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
