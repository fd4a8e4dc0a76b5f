package remote

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/internal/adapters/config"
	"go.trai.ch/dake/internal/adapters/logger"
	"go.trai.ch/dake/internal/core/ports"
)

const NodeID graft.ID = "remote.dispatcher"

func init() {
	graft.Register(graft.Node[ports.Dispatcher]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.Dispatcher, error) {
			cfg, err := graft.Dep[*config.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewDispatcher(Options{
				DialAttempts: cfg.DialAttempts,
				DialBackoff:  cfg.DialBackoff.Std(),
			}, log), nil
		},
	})
}
