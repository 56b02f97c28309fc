// Package storage defines the file-storage collaborator the payment
// lifecycle talks to.  The engine only ever handles opaque references; how
// and where bytes live is the collaborator's concern.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileStore stores uploaded documents (payment proofs, bond papers) and
// returns opaque references to them.
type FileStore interface {
	// Save stores the content under the given subdirectory and returns an
	// opaque reference usable with Delete.
	Save(ctx context.Context, subdir, name string, content io.Reader) (string, error)
	// Delete removes a previously stored file.  Deleting a reference that
	// no longer exists is not an error.
	Delete(ctx context.Context, ref string) error
}

// LocalStore is a FileStore over a local directory, suitable for single-node
// deployments and tests.
type LocalStore struct {
	root string
}

// NewLocalStore returns a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

// Save writes the content to <root>/<subdir>/<timestamp>_<name> and returns
// the path relative to the root as the reference.
func (s *LocalStore) Save(ctx context.Context, subdir, name string, content io.Reader) (string, error) {
	dir := filepath.Join(s.root, filepath.Clean(subdir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create subdir: %w", err)
	}
	ref := filepath.Join(filepath.Clean(subdir),
		fmt.Sprintf("%d_%s", time.Now().UTC().UnixNano(), filepath.Base(name)))
	f, err := os.Create(filepath.Join(s.root, ref))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, content); err != nil {
		_ = os.Remove(filepath.Join(s.root, ref))
		return "", fmt.Errorf("write file: %w", err)
	}
	return ref, nil
}

// Delete removes the referenced file.  A missing file is treated as already
// deleted.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Clean(ref)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
