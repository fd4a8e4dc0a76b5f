package hosts

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/internal/adapters/config"
	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/core/ports"
)

const NodeID graft.ID = "adapter.host_registry_factory"

// Factory builds a per-invocation node registry once the Makefile's root
// definitions are known.
type Factory struct {
	port int
}

// NewFactory creates a Factory issuing registries with the given default
// daemon port.
func NewFactory(port int) *Factory {
	return &Factory{port: port}
}

// New creates a registry for one build invocation.
func (f *Factory) New(defs *domain.RootDefs, localDir string) ports.NodeResolver {
	return NewRegistry(defs, f.port, localDir)
}

func init() {
	graft.Register(graft.Node[*Factory]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID},
		Run: func(ctx context.Context) (*Factory, error) {
			cfg, err := graft.Dep[*config.Settings](ctx)
			if err != nil {
				return nil, err
			}
			return &Factory{port: cfg.Port}, nil
		},
	})
}
