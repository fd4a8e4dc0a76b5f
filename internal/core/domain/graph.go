// Package domain contains the core model of the distributed build: targets,
// nodes, the dependency graph, and the error taxonomy.
package domain

import (
	"iter"
	"strings"

	"go.trai.ch/zerr"
)

// ExistsFunc reports whether a non-target prerequisite exists as a file for
// the given depending target. The graph uses it during Validate so that
// source files count as resolved prerequisites.
type ExistsFunc func(t *Target, prereq string) bool

// Graph is the dependency graph of one build invocation. It is built once by
// the parser and read-only afterward; per-target build state lives in the
// scheduler, not here.
type Graph struct {
	targets map[string]*Target
	order   []string // insertion order; order[0] is the default goal

	topo       []string
	dependents map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{targets: make(map[string]*Target)}
}

// AddTarget adds a target definition. Defining the same name twice is an error.
func (g *Graph) AddTarget(t *Target) error {
	if _, exists := g.targets[t.Name]; exists {
		return zerr.With(ErrDuplicateTarget, "target", t.Name)
	}
	g.targets[t.Name] = t
	g.order = append(g.order, t.Name)
	return nil
}

// Target returns the target with the given name.
func (g *Graph) Target(name string) (*Target, bool) {
	t, ok := g.targets[name]
	return t, ok
}

// TargetCount returns the number of targets.
func (g *Graph) TargetCount() int {
	return len(g.targets)
}

// DefaultGoal returns the first target defined in the Makefile, matching
// make's default-goal rule. Returns "" for an empty graph.
func (g *Graph) DefaultGoal() string {
	if len(g.order) == 0 {
		return ""
	}
	return g.order[0]
}

// Validate checks the graph for cycles and unresolved prerequisites and
// derives the topological order and reverse adjacency. The exists callback
// decides whether a non-target prerequisite is an existing source file; it is
// only consulted for targets homed on the coordinator, since checking a
// remote file would require dialing the node before anything is scheduled.
func (g *Graph) Validate(exists ExistsFunc) error {
	g.topo = make([]string, 0, len(g.targets))
	g.dependents = make(map[string][]string, len(g.targets))

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.targets))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		state[name] = visiting
		path = append(path, name)

		t := g.targets[name]
		for _, dep := range t.Prereqs {
			sub, isTarget := g.targets[dep]
			if !isTarget {
				if !t.Remote() && (exists == nil || !exists(t, dep)) {
					return zerr.With(zerr.With(ErrUnresolvedPrerequisite, "prerequisite", dep), "target", name)
				}
				continue
			}
			g.dependents[dep] = append(g.dependents[dep], name)
			switch state[sub.Name] {
			case visiting:
				return cycleError(path, dep)
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		state[name] = done
		path = path[:len(path)-1]
		g.topo = append(g.topo, name)
		return nil
	}

	// Insertion order keeps validation deterministic across runs.
	for _, name := range g.order {
		if state[name] == unvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func cycleError(path []string, dep string) error {
	start := 0
	for i, name := range path {
		if name == dep {
			start = i
			break
		}
	}
	cycle := append(append([]string{}, path[start:]...), dep)
	return zerr.With(ErrCycleDetected, "cycle", strings.Join(cycle, " -> "))
}

// Dependents returns the names of targets that list name as a prerequisite.
// Valid after Validate.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// Walk yields targets in topological order (prerequisites first). Valid after
// Validate.
func (g *Graph) Walk() iter.Seq[*Target] {
	return func(yield func(*Target) bool) {
		for _, name := range g.topo {
			if !yield(g.targets[name]) {
				return
			}
		}
	}
}

// Needed returns the transitive prerequisite closure of the requested goals,
// in topological order. An unknown goal is ErrTargetNotFound.
func (g *Graph) Needed(goals []string) ([]string, error) {
	needed := make(map[string]bool, len(g.targets))

	var mark func(name string)
	mark = func(name string) {
		if needed[name] {
			return
		}
		needed[name] = true
		for _, dep := range g.targets[name].Prereqs {
			if _, ok := g.targets[dep]; ok {
				mark(dep)
			}
		}
	}

	for _, goal := range goals {
		if _, ok := g.targets[goal]; !ok {
			return nil, zerr.With(ErrTargetNotFound, "target", goal)
		}
		mark(goal)
	}

	ordered := make([]string, 0, len(needed))
	for _, name := range g.topo {
		if needed[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered, nil
}
