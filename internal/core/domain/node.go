package domain

// DefaultPort is the TCP port a daemon listens on unless configured otherwise.
const DefaultPort = 1808

// Node is a resolved execution location: a daemon address plus the working
// directory recipes run in. Nodes are created once per build invocation by
// the node registry and are immutable afterward.
type Node struct {
	// Address is the daemon endpoint in host:port form. Empty for the local node.
	Address string

	// WorkingDir is the directory recipes for this node execute in.
	WorkingDir string

	// Local is true only for the node matching the coordinator itself.
	Local bool
}

// LocalNode returns the node representing the coordinator's own execution
// context, rooted at dir.
func LocalNode(dir string) Node {
	return Node{WorkingDir: dir, Local: true}
}

func (n Node) String() string {
	if n.Local {
		return "local"
	}
	return n.Address
}
