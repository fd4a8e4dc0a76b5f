package daemon

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/internal/adapters/config"
	"go.trai.ch/dake/internal/adapters/logger"
	"go.trai.ch/dake/internal/adapters/shell"
	"go.trai.ch/dake/internal/core/ports"
)

const NodeID graft.ID = "daemon.server"

func init() {
	graft.Register(graft.Node[*Server]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID, shell.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Server, error) {
			cfg, err := graft.Dep[*config.Settings](ctx)
			if err != nil {
				return nil, err
			}
			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewServer(cfg.Port, executor, log), nil
		},
	})
}
