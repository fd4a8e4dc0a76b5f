// Package hosts resolves host tokens from Makefile annotations into concrete
// execution nodes.
package hosts

import (
	"net"
	"strconv"
	"sync"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/zerr"
)

// LookupFunc resolves a DNS name to addresses. Injectable for tests.
type LookupFunc func(host string) ([]string, error)

// Registry implements ports.NodeResolver. Resolution is memoized for the
// build invocation; failures are not cached so a transient DNS hiccup does
// not poison later targets.
type Registry struct {
	defs   *domain.RootDefs
	port   int
	local  domain.Node
	lookup LookupFunc

	mu    sync.Mutex
	cache map[string]domain.Node
}

// NewRegistry creates a registry over the build's root definitions. localDir
// is the coordinator's working directory; port is the daemon port used when
// a token does not carry one.
func NewRegistry(defs *domain.RootDefs, port int, localDir string) *Registry {
	if defs == nil {
		defs = domain.NewRootDefs()
	}
	if port == 0 {
		port = domain.DefaultPort
	}
	return &Registry{
		defs:   defs,
		port:   port,
		local:  domain.LocalNode(localDir),
		lookup: net.LookupHost,
		cache:  make(map[string]domain.Node),
	}
}

// SetLookup replaces the DNS lookup, for tests.
func (r *Registry) SetLookup(fn LookupFunc) {
	r.lookup = fn
}

// Local returns the coordinator's own node.
func (r *Registry) Local() domain.Node {
	return r.local
}

// Resolve maps a host token and optional target-level path override to a
// node. Order: root definition, IP literal, host:port socket, DNS name.
func (r *Registry) Resolve(token, labelPath string) (domain.Node, error) {
	if token == "" {
		return r.local, nil
	}

	key := token + "\x00" + labelPath
	r.mu.Lock()
	if node, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return node, nil
	}
	r.mu.Unlock()

	addr, err := r.resolveAddress(token)
	if err != nil {
		return domain.Node{}, err
	}

	// The target's |path beats the root-level path; without either the
	// daemon builds in its own current directory.
	dir := labelPath
	if dir == "" {
		if rootPath, ok := r.defs.Lookup(token); ok {
			dir = rootPath
		} else {
			dir = "."
		}
	}

	node := domain.Node{Address: addr, WorkingDir: dir}
	r.mu.Lock()
	r.cache[key] = node
	r.mu.Unlock()
	return node, nil
}

func (r *Registry) resolveAddress(token string) (string, error) {
	// host:port socket literal, e.g. "10.0.0.2:9000" or "buildhost:9000".
	if host, portStr, err := net.SplitHostPort(token); err == nil {
		if _, err := strconv.Atoi(portStr); err == nil {
			if net.ParseIP(host) != nil {
				return token, nil
			}
			return r.resolveName(host, portStr)
		}
	}

	// Bare IP literal gets the default port.
	if net.ParseIP(token) != nil {
		return net.JoinHostPort(token, strconv.Itoa(r.port)), nil
	}

	// Anything else is a DNS name.
	return r.resolveName(token, strconv.Itoa(r.port))
}

func (r *Registry) resolveName(name, port string) (string, error) {
	addrs, err := r.lookup(name)
	if err != nil || len(addrs) == 0 {
		return "", zerr.With(zerr.Wrap(domain.ErrNodeResolution, "DNS lookup failed"), "host", name)
	}
	return net.JoinHostPort(addrs[0], port), nil
}
