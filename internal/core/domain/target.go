package domain

// Target is a named build unit: prerequisites, an ordered recipe, and an
// optional host annotation from a `name[host]` or `name[host|path]` header.
type Target struct {
	Name string

	// Prereqs keeps the declared order for deterministic variable expansion.
	// Order carries no scheduling priority.
	Prereqs []string

	// Recipe holds the shell command lines, already variable-expanded.
	// A target with no recipe is a pure aggregate.
	Recipe []string

	// Host is the raw host token from the bracket annotation. Empty means
	// the target runs on the coordinator. Resolution into a Node is deferred
	// until the target is scheduled.
	Host string

	// Dir is the `|path` working-directory override from the annotation.
	Dir string

	// Line is the 1-based Makefile line of the target header.
	Line int
}

// Remote reports whether the target carries a host annotation.
func (t *Target) Remote() bool {
	return t.Host != ""
}
