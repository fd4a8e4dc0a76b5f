// Package app implements the application layer for dake.
package app

import (
	"context"
	"fmt"

	"go.trai.ch/dake/internal/adapters/config" //nolint:depguard // Wired in app layer
	"go.trai.ch/dake/internal/adapters/hosts"  //nolint:depguard // Wired in app layer
	"go.trai.ch/dake/internal/adapters/makefile"
	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/dake/internal/daemon"
	"go.trai.ch/dake/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// RunOptions carries per-invocation CLI flags.
type RunOptions struct {
	// File overrides the Makefile filename search.
	File string
}

// App ties the Makefile front end, the node registry, and the scheduler
// together for one coordinator process.
type App struct {
	loader    *makefile.Loader
	settings  *config.Settings
	hosts     *hosts.Factory
	scheduler *scheduler.Scheduler
	server    *daemon.Server
	store     ports.ArtifactStore
	dispatch  ports.Dispatcher
	logger    ports.Logger
}

// New creates an App instance.
func New(
	loader *makefile.Loader,
	settings *config.Settings,
	hostFactory *hosts.Factory,
	sched *scheduler.Scheduler,
	server *daemon.Server,
	store ports.ArtifactStore,
	dispatch ports.Dispatcher,
	logger ports.Logger,
) *App {
	return &App{
		loader:    loader,
		settings:  settings,
		hosts:     hostFactory,
		scheduler: sched,
		server:    server,
		store:     store,
		dispatch:  dispatch,
		logger:    logger,
	}
}

// Run builds the named goals, or the Makefile's default goal when none are
// given. Build failures come back as *domain.ExitError so the CLI can
// propagate the recipe's exit code.
func (a *App) Run(ctx context.Context, goals []string, opts RunOptions) error {
	defer func() { _ = a.dispatch.Close() }()

	const dir = "."
	if opts.File != "" {
		a.loader.Filename = opts.File
	}

	mf, err := a.loader.Load(dir)
	if err != nil {
		return zerr.Wrap(err, "cannot load build description")
	}

	if err := mf.Graph.Validate(a.sourceExists); err != nil {
		return zerr.With(err, "makefile", mf.Path)
	}

	if len(goals) == 0 {
		goal := mf.Graph.DefaultGoal()
		if goal == "" {
			return zerr.Wrap(domain.ErrTargetNotFound, "the makefile defines no targets")
		}
		goals = []string{goal}
	}

	resolver := a.hosts.New(mf.RootDefs, dir)

	summary, err := a.scheduler.Run(ctx, mf.Graph, resolver, goals, scheduler.Options{
		Parallelism:     a.settings.Parallelism,
		NodeParallelism: a.settings.NodeParallelism,
		BuildTimeout:    a.settings.BuildTimeout.Std(),
	})
	if err != nil {
		return err
	}

	a.logger.Info(fmt.Sprintf("done: %d built, %d up to date", summary.Built, summary.UpToDate))
	return nil
}

// ServeDaemon runs the build daemon until the context is canceled. A
// positive port overrides the configured one.
func (a *App) ServeDaemon(ctx context.Context, port int) error {
	if port > 0 {
		a.server.SetPort(port)
	}

	err := a.server.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		// Canceled by signal; a clean daemon exit.
		return nil
	}
	return err
}

// sourceExists answers graph validation's question about non-target
// prerequisites: is there a matching file on disk.
func (a *App) sourceExists(_ *domain.Target, path string) bool {
	info, err := a.store.Stat(path)
	return err == nil && info.Exists
}
