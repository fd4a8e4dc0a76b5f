package config

import (
	"context"

	"github.com/grindlemire/graft"
)

const NodeID graft.ID = "adapter.settings"

func init() {
	graft.Register(graft.Node[*Settings]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (*Settings, error) {
			return Load(".")
		},
	})
}
