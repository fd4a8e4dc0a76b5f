// Package ports defines the interfaces between the build core and its adapters.
package ports

import "go.trai.ch/dake/internal/core/domain"

// MakefileLoader parses a build description into root definitions and a
// dependency graph.
type MakefileLoader interface {
	// Load parses the Makefile in dir. An empty dir means the current
	// directory; the default filename candidates are tried in order.
	Load(dir string) (*domain.Makefile, error)
}
