package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidPath is returned for paths that would leave the storage root
var ErrInvalidPath = errors.New("invalid storage path")

// FileStore removes stored featured images
type FileStore interface {
	Delete(ctx context.Context, path string) error
}

// LocalStore keeps files under a root directory on local disk
type LocalStore struct {
	root string
	log  zerolog.Logger
}

// NewLocalStore creates a store rooted at dir, creating it if needed
func NewLocalStore(dir string, log zerolog.Logger) (*LocalStore, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{
		root: root,
		log:  log.With().Str("component", "storage").Logger(),
	}, nil
}

// Delete removes the file at the given relative path. Deleting a file that
// does not exist is not an error.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	s.log.Debug().Str("path", path).Msg("Stored file deleted")
	return nil
}

func (s *LocalStore) resolve(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return "", ErrInvalidPath
	}
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if full == s.root || !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}
