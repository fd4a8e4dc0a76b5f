// Package artifact implements the coordinator-local store fetched build
// outputs land in.
package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.ArtifactStore rooted at the build directory. The
// daemon owns the authoritative copy of every remote artifact; files written
// here are disposable local copies.
type Store struct {
	root string
}

// NewStore creates a store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Write places data at path (relative to the root), creating parent
// directories. The file gets a fresh mtime so downstream staleness checks
// see the fetch time, not the remote build time.
func (s *Store) Write(path string, data []byte) error {
	full := s.join(path)

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return zerr.Wrap(err, "failed to create artifact directory")
	}
	if err := os.WriteFile(full, data, 0o644); err != nil { //nolint:gosec // build outputs are world-readable
		return zerr.Wrap(err, "failed to write artifact")
	}
	return nil
}

// Stat reports metadata for path. A missing file yields Exists=false, not an
// error.
func (s *Store) Stat(path string) (domain.FileInfo, error) {
	info, err := os.Stat(s.join(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.FileInfo{}, nil
		}
		return domain.FileInfo{}, zerr.Wrap(err, "failed to stat artifact")
	}
	return domain.FileInfo{
		Exists:  true,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

func (s *Store) join(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}
