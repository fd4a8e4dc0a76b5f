package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/internal/adapters/artifact" //nolint:depguard // Wired in app layer
	"go.trai.ch/dake/internal/adapters/config"   //nolint:depguard // Wired in app layer
	"go.trai.ch/dake/internal/adapters/hosts"    //nolint:depguard // Wired in app layer
	"go.trai.ch/dake/internal/adapters/logger"   //nolint:depguard // Wired in app layer
	"go.trai.ch/dake/internal/adapters/makefile" //nolint:depguard // Wired in app layer
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/dake/internal/daemon"
	"go.trai.ch/dake/internal/engine/scheduler"
	"go.trai.ch/dake/internal/remote"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components bundles what the CLI entry point needs after initialization.
type Components struct {
	App      *App
	Logger   ports.Logger
	Settings *config.Settings
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			makefile.NodeID,
			config.NodeID,
			hosts.NodeID,
			scheduler.NodeID,
			daemon.NodeID,
			artifact.NodeID,
			remote.NodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			config.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[*makefile.Loader](ctx)
	if err != nil {
		return nil, err
	}
	settings, err := graft.Dep[*config.Settings](ctx)
	if err != nil {
		return nil, err
	}
	hostFactory, err := graft.Dep[*hosts.Factory](ctx)
	if err != nil {
		return nil, err
	}
	sched, err := graft.Dep[*scheduler.Scheduler](ctx)
	if err != nil {
		return nil, err
	}
	server, err := graft.Dep[*daemon.Server](ctx)
	if err != nil {
		return nil, err
	}
	store, err := graft.Dep[ports.ArtifactStore](ctx)
	if err != nil {
		return nil, err
	}
	dispatch, err := graft.Dep[ports.Dispatcher](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, settings, hostFactory, sched, server, store, dispatch, log), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	a, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	settings, err := graft.Dep[*config.Settings](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:      a,
		Logger:   log,
		Settings: settings,
	}, nil
}
