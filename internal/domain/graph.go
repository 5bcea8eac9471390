package domain

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Graph is the set of nodes and connections of one project. It is the unit
// of persistence and of undo/redo snapshotting; slice order is insertion
// order and only matters for stable rendering.
type Graph struct {
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// NewGraph creates an empty graph with initialized collections
func NewGraph() Graph {
	return Graph{
		Nodes:       make([]Node, 0),
		Connections: make([]Connection, 0),
	}
}

// NodeIndex returns the index of node id, or -1
func (g Graph) NodeIndex(id string) int {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Node returns the node with the given id
func (g Graph) Node(id string) (Node, bool) {
	if i := g.NodeIndex(id); i >= 0 {
		return g.Nodes[i], true
	}
	return Node{}, false
}

// HasNode reports whether id exists in the graph
func (g Graph) HasNode(id string) bool {
	return g.NodeIndex(id) >= 0
}

// Connection returns the connection with the given id
func (g Graph) Connection(id string) (Connection, bool) {
	for _, c := range g.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return Connection{}, false
}

// ConnectionInto returns the connection terminating at an input handle
func (g Graph) ConnectionInto(nodeID, handleID string) (Connection, bool) {
	for _, c := range g.Connections {
		if c.Targets(nodeID, handleID) {
			return c, true
		}
	}
	return Connection{}, false
}

// IsInputConnected reports whether an input handle has an incoming edge
func (g Graph) IsInputConnected(nodeID, handleID string) bool {
	_, ok := g.ConnectionInto(nodeID, handleID)
	return ok
}

// ConnectionsOf returns every connection touching nodeID
func (g Graph) ConnectionsOf(nodeID string) []Connection {
	var out []Connection
	for _, c := range g.Connections {
		if c.Involves(nodeID) {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy of g
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes:       make([]Node, len(g.Nodes)),
		Connections: make([]Connection, len(g.Connections)),
	}
	for i, n := range g.Nodes {
		n.Data = ClonePayload(n.Data)
		out.Nodes[i] = n
	}
	copy(out.Connections, g.Connections)
	return out
}

// ResolveInputs returns, per connected input handle of nodeID, the value
// provided by the upstream output
func (g Graph) ResolveInputs(nodeID string) map[string]Value {
	inputs := make(map[string]Value)
	for _, c := range g.Connections {
		if c.ToNodeID != nodeID {
			continue
		}
		src, ok := g.Node(c.FromNodeID)
		if !ok {
			continue
		}
		if v, ok := OutputValue(src, c.FromHandleID); ok {
			inputs[c.ToHandleID] = v
		}
	}
	return inputs
}

// Fingerprint returns a blake2b digest of the graph's serialized form.
// Layout caches are not serialized, so they do not affect the result.
func (g Graph) Fingerprint() string {
	data, err := json.Marshal(g.normalized())
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether a and b are the same graph ignoring derived caches
// and the nil/empty distinction of the collections
func Equal(a, b Graph) bool {
	return a.Fingerprint() == b.Fingerprint()
}

func (g Graph) normalized() Graph {
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Connections == nil {
		g.Connections = []Connection{}
	}
	return g
}

// MarshalJSON always emits arrays, never null, for the collections
func (g Graph) MarshalJSON() ([]byte, error) {
	type plain Graph
	return json.Marshal(plain(g.normalized()))
}
