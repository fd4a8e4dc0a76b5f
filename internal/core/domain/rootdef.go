package domain

import (
	"sort"

	"go.trai.ch/zerr"
)

// RootDef is one parsed `#!ROOT_DEF` directive.
type RootDef struct {
	Host string
	Path string
}

// RootDefs maps host tokens to the working directory declared by a
// `#!ROOT_DEF <host> = <path>` directive.
type RootDefs struct {
	paths map[string]string
}

// NewRootDefs returns an empty definition table.
func NewRootDefs() *RootDefs {
	return &RootDefs{paths: make(map[string]string)}
}

// Add records a root definition. Redefining a host token is a hard error
// rather than last-write-wins: silently picking one path would be a latent
// correctness bug.
func (r *RootDefs) Add(host, path string) error {
	if _, ok := r.paths[host]; ok {
		return zerr.With(ErrDuplicateRootDef, "host", host)
	}
	r.paths[host] = path
	return nil
}

// Lookup returns the declared path for a host token.
func (r *RootDefs) Lookup(host string) (string, bool) {
	path, ok := r.paths[host]
	return path, ok
}

// Len returns the number of definitions.
func (r *RootDefs) Len() int {
	return len(r.paths)
}

// All returns the definitions sorted by host token.
func (r *RootDefs) All() []RootDef {
	defs := make([]RootDef, 0, len(r.paths))
	for host, path := range r.paths {
		defs = append(defs, RootDef{Host: host, Path: path})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Host < defs[j].Host })
	return defs
}
