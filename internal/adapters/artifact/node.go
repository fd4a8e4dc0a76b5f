package artifact

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/internal/core/ports"
)

const NodeID graft.ID = "adapter.artifact_store"

func init() {
	graft.Register(graft.Node[ports.ArtifactStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.ArtifactStore, error) {
			return NewStore("."), nil
		},
	})
}
