package domain

// Makefile is the parsed build description: the root definitions from
// `#!ROOT_DEF` directives plus the seeded dependency graph.
type Makefile struct {
	Path     string
	RootDefs *RootDefs
	Graph    *Graph
}
