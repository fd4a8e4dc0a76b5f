package telemetry

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/internal/core/ports"
)

const NodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[ports.Tracer]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Tracer, error) {
			return NewTracer("dake"), nil
		},
	})
}
