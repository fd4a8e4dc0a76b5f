package ports

import "go.trai.ch/dake/internal/core/domain"

// ArtifactStore is the coordinator-local file cache fetched artifacts land
// in. Paths are relative to the build root. The coalescing rule on the
// daemon guarantees a single producer per path per build, so the store needs
// no cross-writer locking for the same path.
type ArtifactStore interface {
	// Write places fetched bytes at path, creating parent directories, and
	// stamps a fresh modification time.
	Write(path string, data []byte) error

	// Stat reports local file metadata; a missing file is not an error.
	Stat(path string) (domain.FileInfo, error)
}
