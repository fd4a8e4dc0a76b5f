package ports

import "go.trai.ch/dake/internal/core/domain"

// NodeResolver turns a host token into a concrete execution location.
// Implementations are memoized per build invocation; a failed resolution is
// reported when the target is scheduled, not at parse time.
type NodeResolver interface {
	// Resolve maps a host token (root definition, IP literal, host:port
	// socket, or DNS name) to a node. labelPath is the `|path` override from
	// the target annotation and takes precedence over any root-level path.
	// An empty token yields the local node.
	Resolve(token, labelPath string) (domain.Node, error)

	// Local returns the coordinator's own node.
	Local() domain.Node
}
