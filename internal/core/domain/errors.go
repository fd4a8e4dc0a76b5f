package domain

import "go.trai.ch/zerr"

var (
	// ErrSyntax is returned when the Makefile contains a malformed directive
	// or target definition. It always carries a "line" attribute.
	ErrSyntax = zerr.New("syntax error")

	// ErrDuplicateTarget is returned when a target name is defined twice.
	ErrDuplicateTarget = zerr.New("target already defined")

	// ErrDuplicateRootDef is returned when two ROOT_DEF directives name the
	// same host token.
	ErrDuplicateRootDef = zerr.New("duplicate root definition")

	// ErrCycleDetected is returned when the dependency graph contains a cycle.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrUnresolvedPrerequisite is returned when a prerequisite is neither a
	// known target nor an existing file.
	ErrUnresolvedPrerequisite = zerr.New("unresolved prerequisite")

	// ErrTargetNotFound is returned when a requested goal is not in the graph.
	ErrTargetNotFound = zerr.New("target not found")

	// ErrNodeResolution is returned when a host token cannot be resolved to a
	// node. Raised when the target is scheduled, never at parse time.
	ErrNodeResolution = zerr.New("node resolution failed")

	// ErrConnection is returned when a daemon cannot be reached.
	ErrConnection = zerr.New("connection failed")

	// ErrDispatchTimeout is returned when a remote dispatch exceeds its deadline.
	ErrDispatchTimeout = zerr.New("remote dispatch timed out")

	// ErrRecipeFailed is returned when a recipe line exits nonzero.
	ErrRecipeFailed = zerr.New("recipe failed")

	// ErrArtifactNotFound is returned when a fetch names a path the daemon
	// never produced.
	ErrArtifactNotFound = zerr.New("artifact not found")

	// ErrProtocol is returned on a malformed or unexpected wire message.
	ErrProtocol = zerr.New("protocol error")

	// ErrBuildFailed is the terminal error for a build with at least one
	// failed target.
	ErrBuildFailed = zerr.New("build failed")

	// ErrNoMakefile mirrors make's message when no makefile is present.
	ErrNoMakefile = zerr.New("no targets specified and no makefile found")
)

// ExitError wraps a build failure and carries the exit code of the first
// failing target so the CLI can propagate it.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying cause chain.
func (e *ExitError) Unwrap() error {
	return e.Err
}
