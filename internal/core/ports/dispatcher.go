package ports

import (
	"context"

	"go.trai.ch/dake/internal/core/domain"
)

// Dispatcher is the coordinator-side client for remote daemons. Sessions are
// opened lazily per node and reused across requests within one build.
type Dispatcher interface {
	// Build sends the recipe to the node's daemon and waits for the result.
	// Connection failures surface as domain.ErrConnection after the bounded
	// retry policy is exhausted.
	Build(ctx context.Context, node domain.Node, target string, recipe []string) (*domain.RecipeResult, error)

	// Fetch pulls the bytes of a file the daemon produced. The path is
	// relative to the node's working directory. A missing path is
	// domain.ErrArtifactNotFound.
	Fetch(ctx context.Context, node domain.Node, path string) ([]byte, error)

	// Stat reports file metadata from the node, so staleness decisions use
	// the node's own clock.
	Stat(ctx context.Context, node domain.Node, path string) (domain.FileInfo, error)

	// Close tears down all open sessions.
	Close() error
}
