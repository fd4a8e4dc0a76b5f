package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/internal/adapters/artifact"
	"go.trai.ch/dake/internal/adapters/logger"
	"go.trai.ch/dake/internal/adapters/shell"
	"go.trai.ch/dake/internal/adapters/telemetry"
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/dake/internal/remote"
)

const NodeID graft.ID = "engine.scheduler"

func init() {
	graft.Register(graft.Node[*Scheduler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{shell.NodeID, remote.NodeID, artifact.NodeID, logger.NodeID, telemetry.NodeID},
		Run: func(ctx context.Context) (*Scheduler, error) {
			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}
			dispatcher, err := graft.Dep[ports.Dispatcher](ctx)
			if err != nil {
				return nil, err
			}
			store, err := graft.Dep[ports.ArtifactStore](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}
			return New(executor, dispatcher, store, log, tracer), nil
		},
	})
}
