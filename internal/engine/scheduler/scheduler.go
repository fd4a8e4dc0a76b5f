// Package scheduler orchestrates target execution over the dependency graph.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

// TargetStatus is the lifecycle state of one target within a run.
type TargetStatus string

const (
	// StatusPending indicates the target is waiting on prerequisites.
	StatusPending TargetStatus = "Pending"
	// StatusScheduled indicates the target is placed and deciding staleness.
	StatusScheduled TargetStatus = "Scheduled"
	// StatusRunning indicates the target's recipe is executing.
	StatusRunning TargetStatus = "Running"
	// StatusSucceeded indicates the recipe ran and exited zero.
	StatusSucceeded TargetStatus = "Succeeded"
	// StatusUpToDate indicates no work was needed.
	StatusUpToDate TargetStatus = "UpToDate"
	// StatusFailed indicates the recipe failed, or a prerequisite did.
	StatusFailed TargetStatus = "Failed"
)

// Options tunes one run.
type Options struct {
	// Parallelism caps concurrently running targets. Values below 1 mean 1.
	Parallelism int

	// NodeParallelism caps in-flight recipes per node. Zero means unbounded.
	NodeParallelism int

	// BuildTimeout bounds a single dispatch. Zero means no deadline.
	BuildTimeout time.Duration
}

// Summary reports what a run did.
type Summary struct {
	Built    int
	UpToDate int
	Failed   int
	Statuses map[string]TargetStatus
}

// Scheduler runs targets in dependency order, deciding staleness per target
// on the node that owns it.
type Scheduler struct {
	executor   ports.Executor
	dispatcher ports.Dispatcher
	store      ports.ArtifactStore
	logger     ports.Logger
	tracer     ports.Tracer
}

// New creates a Scheduler. A nil tracer disables span emission.
func New(executor ports.Executor, dispatcher ports.Dispatcher, store ports.ArtifactStore, logger ports.Logger, tracer ports.Tracer) *Scheduler {
	return &Scheduler{
		executor:   executor,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		tracer:     tracer,
	}
}

// Run builds the goals and everything they transitively need. The first
// failing target aborts further scheduling; in-flight targets finish and
// transitive dependents of the failure are marked Failed without running.
// A build failure is returned as *domain.ExitError.
func (s *Scheduler) Run(ctx context.Context, graph *domain.Graph, resolver ports.NodeResolver, goals []string, opts Options) (*Summary, error) {
	state, err := s.newRunState(ctx, graph, resolver, goals, opts)
	if err != nil {
		return nil, err
	}

	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-ctx.Done():
			state.drain()
			return state.summary(), zerr.Wrap(domain.ErrBuildFailed, ctx.Err().Error())
		}
	}

	return state.summary(), state.firstErr
}

// result is one finished target execution.
type result struct {
	name     string
	status   TargetStatus
	rebuilt  bool
	exitCode int
	err      error
}

type runState struct {
	s        *Scheduler
	ctx      context.Context
	resolver ports.NodeResolver
	opts     Options
	goals    map[string]bool

	targets  map[string]*domain.Target
	inDegree map[string]int
	deps     map[string][]string

	ready     []string
	active    int
	halted    bool
	resultsCh chan result

	statusMu sync.Mutex
	statuses map[string]TargetStatus
	rebuilt  map[string]bool
	nodeSem  map[string]*semaphore.Weighted
	semMu    sync.Mutex

	firstErr error
}

func (s *Scheduler) newRunState(ctx context.Context, graph *domain.Graph, resolver ports.NodeResolver, goals []string, opts Options) (*runState, error) {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	needed, err := graph.Needed(goals)
	if err != nil {
		return nil, err
	}

	state := &runState{
		s:         s,
		ctx:       ctx,
		resolver:  resolver,
		opts:      opts,
		goals:     make(map[string]bool, len(goals)),
		targets:   make(map[string]*domain.Target, len(needed)),
		inDegree:  make(map[string]int, len(needed)),
		deps:      make(map[string][]string, len(needed)),
		resultsCh: make(chan result, opts.Parallelism),
		statuses:  make(map[string]TargetStatus, len(needed)),
		rebuilt:   make(map[string]bool, len(needed)),
		nodeSem:   make(map[string]*semaphore.Weighted),
	}
	for _, goal := range goals {
		state.goals[goal] = true
	}

	inNeed := make(map[string]bool, len(needed))
	for _, name := range needed {
		inNeed[name] = true
	}

	for _, name := range needed {
		t, _ := graph.Target(name)
		state.targets[name] = t
		state.statuses[name] = StatusPending

		degree := 0
		for _, p := range t.Prereqs {
			if inNeed[p] {
				degree++
				state.deps[p] = append(state.deps[p], name)
			}
		}
		state.inDegree[name] = degree
		if degree == 0 {
			state.ready = append(state.ready, name)
		}
	}

	return state, nil
}

func (state *runState) isDone() bool {
	return state.active == 0 && (len(state.ready) == 0 || state.halted)
}

// schedule launches ready targets up to the parallelism cap. Nothing new
// starts after a failure.
func (state *runState) schedule() {
	for !state.halted && len(state.ready) > 0 && state.active < state.opts.Parallelism {
		name := state.ready[0]
		state.ready = state.ready[1:]

		t := state.targets[name]
		state.active++
		state.setStatus(name, StatusScheduled)

		// Snapshot prerequisite state; the rebuilt map is only written by
		// the loop goroutine.
		prereqRebuilt := false
		for _, p := range t.Prereqs {
			if state.rebuilt[p] {
				prereqRebuilt = true
				break
			}
		}

		go func(t *domain.Target, prereqRebuilt, wanted bool) {
			state.resultsCh <- state.execute(t, prereqRebuilt, wanted)
		}(t, prereqRebuilt, state.needsLocalCopy(t))
	}
}

// needsLocalCopy reports whether a remote target's artifact must land on the
// coordinator: either a goal was built remotely, or some dependent is homed
// on a different node.
func (state *runState) needsLocalCopy(t *domain.Target) bool {
	if !t.Remote() {
		return false
	}
	if state.goals[t.Name] {
		return true
	}
	for _, dep := range state.deps[t.Name] {
		d := state.targets[dep]
		if d.Host != t.Host || d.Dir != t.Dir {
			return true
		}
	}
	return false
}

// execute runs one target end to end on a worker goroutine: resolve its
// node, decide staleness, run the recipe, and copy the artifact back when a
// differently-homed dependent needs it.
func (state *runState) execute(t *domain.Target, prereqRebuilt, wantLocal bool) result {
	res := result{name: t.Name}

	span := state.startSpan(t.Name)
	defer span.End()
	defer func() {
		span.SetAttribute("status", string(res.status))
		if res.err != nil {
			span.RecordError(res.err)
		}
	}()

	node, err := state.resolver.Resolve(t.Host, t.Dir)
	if err != nil {
		res.status = StatusFailed
		res.err = zerr.Wrap(err, "cannot place target "+t.Name)
		return res
	}
	span.SetAttribute("node", node.String())

	// A rule without a recipe only aggregates its prerequisites.
	if len(t.Recipe) == 0 {
		res.rebuilt = prereqRebuilt
		if prereqRebuilt {
			res.status = StatusSucceeded
		} else {
			res.status = StatusUpToDate
		}
		return res
	}

	state.setStatus(t.Name, StatusRunning)

	stale, err := state.isStale(t, node, prereqRebuilt)
	if err != nil {
		res.status = StatusFailed
		res.err = err
		return res
	}
	if !stale {
		if wantLocal {
			if err := state.ensureLocalCopy(t, node); err != nil {
				res.status = StatusFailed
				res.err = err
				return res
			}
		}
		res.status = StatusUpToDate
		return res
	}

	out, err := state.runRecipe(t, node)
	if err != nil {
		res.status = StatusFailed
		res.err = err
		return res
	}
	if !out.Ok() {
		res.status = StatusFailed
		res.exitCode = out.ExitCode
		res.err = zerr.With(zerr.Wrap(domain.ErrRecipeFailed, failureDetail(t.Name, out)), "exit_code", out.ExitCode)
		return res
	}

	if wantLocal {
		if err := state.copyArtifact(t, node); err != nil {
			res.status = StatusFailed
			res.err = err
			return res
		}
	}

	res.status = StatusSucceeded
	res.rebuilt = true
	return res
}

// isStale applies the make freshness rule on the target's own node: missing
// file, an older mtime than any prerequisite, or a prerequisite rebuilt in
// this run.
func (state *runState) isStale(t *domain.Target, node domain.Node, prereqRebuilt bool) (bool, error) {
	if prereqRebuilt {
		return true, nil
	}

	info, err := state.statOn(node, t.Name)
	if err != nil {
		return false, zerr.Wrap(err, "cannot stat target "+t.Name)
	}
	if !info.Exists {
		return true, nil
	}

	for _, p := range t.Prereqs {
		pNode := node
		if pt, ok := state.targets[p]; ok {
			resolved, err := state.resolver.Resolve(pt.Host, pt.Dir)
			if err != nil {
				return false, zerr.Wrap(err, "cannot place prerequisite "+p)
			}
			pNode = resolved
		}

		pInfo, err := state.statOn(pNode, p)
		if err != nil {
			return false, zerr.Wrap(err, "cannot stat prerequisite "+p)
		}
		if !pInfo.Exists {
			// A missing prerequisite file that is itself a target was
			// either just found up to date or aggregates others; treat
			// the current target as stale to be safe.
			return true, nil
		}
		if pInfo.ModTime.After(info.ModTime) {
			return true, nil
		}
	}
	return false, nil
}

// statOn reads file metadata where the file lives, so comparisons use the
// owning node's clock.
func (state *runState) statOn(node domain.Node, path string) (domain.FileInfo, error) {
	if node.Local {
		return state.s.store.Stat(path)
	}
	return state.s.dispatcher.Stat(state.ctx, node, path)
}

// runRecipe executes the expanded recipe lines locally or via the node's
// daemon, honoring the per-node cap and the dispatch timeout.
func (state *runState) runRecipe(t *domain.Target, node domain.Node) (*domain.RecipeResult, error) {
	if sem := state.semFor(node); sem != nil {
		if err := sem.Acquire(state.ctx, 1); err != nil {
			return nil, zerr.Wrap(domain.ErrBuildFailed, err.Error())
		}
		defer sem.Release(1)
	}

	ctx := state.ctx
	if state.opts.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, state.opts.BuildTimeout)
		defer cancel()
	}

	if node.Local {
		out, err := state.s.executor.Run(ctx, node.WorkingDir, t.Recipe)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, zerr.Wrap(domain.ErrDispatchTimeout, t.Name)
		}
		return out, err
	}

	if state.s.logger != nil {
		state.s.logger.Info("dispatching " + t.Name + " to " + node.String())
	}
	out, err := state.s.dispatcher.Build(ctx, node, t.Name, t.Recipe)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, zerr.Wrap(domain.ErrDispatchTimeout, t.Name+" on "+node.String())
	}
	return out, err
}

// ensureLocalCopy refreshes the coordinator's copy of an up-to-date remote
// artifact. A dependent needs the bytes locally even when the remote recipe
// did not re-run this invocation.
func (state *runState) ensureLocalCopy(t *domain.Target, node domain.Node) error {
	local, err := state.s.store.Stat(t.Name)
	if err != nil {
		return zerr.Wrap(err, "cannot stat local copy of "+t.Name)
	}
	remote, err := state.s.dispatcher.Stat(state.ctx, node, t.Name)
	if err != nil {
		return zerr.Wrap(err, "cannot stat "+t.Name+" on "+node.String())
	}
	if local.Exists && !remote.ModTime.After(local.ModTime) {
		return nil
	}
	return state.copyArtifact(t, node)
}

// copyArtifact pulls a remote build product into the coordinator's store so
// differently-homed dependents see a fresh local copy.
func (state *runState) copyArtifact(t *domain.Target, node domain.Node) error {
	data, err := state.s.dispatcher.Fetch(state.ctx, node, t.Name)
	if err != nil {
		return zerr.Wrap(err, "failed to fetch "+t.Name+" from "+node.String())
	}
	if err := state.s.store.Write(t.Name, data); err != nil {
		return zerr.Wrap(err, "failed to store "+t.Name)
	}
	if state.s.logger != nil {
		state.s.logger.Info(fmt.Sprintf("fetched %s from %s (%d bytes)", t.Name, node, len(data)))
	}
	return nil
}

// startSpan opens a tracing span for one target, or a discard span when no
// tracer is wired.
func (state *runState) startSpan(name string) ports.Span {
	if state.s.tracer == nil {
		return discardSpan{}
	}
	_, span := state.s.tracer.Start(state.ctx, name)
	return span
}

type discardSpan struct{}

func (discardSpan) SetAttribute(string, any) {}
func (discardSpan) RecordError(error) {}
func (discardSpan) End() {}

// semFor returns the per-node concurrency gate, creating it on first use.
func (state *runState) semFor(node domain.Node) *semaphore.Weighted {
	if state.opts.NodeParallelism <= 0 {
		return nil
	}

	state.semMu.Lock()
	defer state.semMu.Unlock()

	key := node.String()
	sem, ok := state.nodeSem[key]
	if !ok {
		sem = semaphore.NewWeighted(int64(state.opts.NodeParallelism))
		state.nodeSem[key] = sem
	}
	return sem
}

func (state *runState) setStatus(name string, status TargetStatus) {
	state.statusMu.Lock()
	state.statuses[name] = status
	state.statusMu.Unlock()
}

func (state *runState) handleResult(res result) {
	state.active--
	state.setStatus(res.name, res.status)

	if res.status == StatusFailed {
		state.halted = true
		state.failDependents(res.name)
		if state.firstErr == nil {
			code := res.exitCode
			if code == 0 {
				code = 1
			}
			state.firstErr = &domain.ExitError{
				Code: code,
				Err:  zerr.With(zerr.Wrap(res.err, "build failed"), "target", res.name),
			}
		}
		if state.s.logger != nil && res.err != nil {
			state.s.logger.Error(res.err)
		}
		return
	}

	state.rebuilt[res.name] = res.rebuilt
	for _, dep := range state.deps[res.name] {
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.ready = append(state.ready, dep)
		}
	}
}

// failDependents marks the transitive dependents of a failed target Failed
// so they never dispatch.
func (state *runState) failDependents(name string) {
	queue := append([]string(nil), state.deps[name]...)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if state.status(dep) == StatusFailed {
			continue
		}
		state.setStatus(dep, StatusFailed)
		queue = append(queue, state.deps[dep]...)
	}
}

func (state *runState) status(name string) TargetStatus {
	state.statusMu.Lock()
	defer state.statusMu.Unlock()
	return state.statuses[name]
}

// drain waits out in-flight workers after a context cancellation so their
// goroutines do not leak into the caller.
func (state *runState) drain() {
	for state.active > 0 {
		res := <-state.resultsCh
		state.active--
		state.setStatus(res.name, res.status)
	}
}

func (state *runState) summary() *Summary {
	state.statusMu.Lock()
	defer state.statusMu.Unlock()

	sum := &Summary{Statuses: make(map[string]TargetStatus, len(state.statuses))}
	for name, status := range state.statuses {
		sum.Statuses[name] = status
		switch status {
		case StatusSucceeded:
			sum.Built++
		case StatusUpToDate:
			sum.UpToDate++
		case StatusFailed:
			sum.Failed++
		}
	}
	return sum
}

// failureDetail renders the tail of a failed recipe's output for the error
// chain.
func failureDetail(name string, out *domain.RecipeResult) string {
	detail := "recipe for " + name + " failed"
	if tail := lastLine(out.Stderr); tail != "" {
		detail += ": " + tail
	} else if tail := lastLine(out.Stdout); tail != "" {
		detail += ": " + tail
	}
	return detail
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	return last
}
