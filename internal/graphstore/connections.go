package graphstore

import (
	"errors"
	"slices"

	"nodeflow/internal/domain"
)

// CheckConnection reports why a connection from an output handle to an input
// handle would be rejected, or nil when AddConnection would accept it.
// Handles are checked against the visible set of each node, so a hidden
// fan-out slot cannot be wired.
func CheckConnection(g domain.Graph, fromNode, fromHandle, toNode, toHandle string) error {
	if fromNode == toNode {
		return ErrSelfLoop
	}
	src, ok := g.Node(fromNode)
	if !ok {
		return ErrUnknownNode
	}
	dst, ok := g.Node(toNode)
	if !ok {
		return ErrUnknownNode
	}

	out, outDir, ok := domain.VisibleHandle(src, fromHandle)
	if !ok {
		return ErrUnknownHandle
	}
	in, inDir, ok := domain.VisibleHandle(dst, toHandle)
	if !ok {
		return ErrUnknownHandle
	}
	if outDir != domain.DirectionOutput || inDir != domain.DirectionInput {
		return ErrDirection
	}
	if !domain.AreCompatible(out.Type, in.Type) {
		return ErrIncompatibleHandles
	}
	if g.IsInputConnected(toNode, toHandle) {
		return ErrInputOccupied
	}
	return nil
}

// AddConnection wires fromHandle of fromNode into toHandle of toNode. A
// rejected connection leaves g unchanged and returns "".
func (s *Store) AddConnection(g domain.Graph, fromNode, fromHandle, toNode, toHandle string) (domain.Graph, string) {
	if err := CheckConnection(g, fromNode, fromHandle, toNode, toHandle); err != nil {
		return g, ""
	}
	return s.appendConnection(g, fromNode, fromHandle, toNode, toHandle)
}

// ReplaceConnection wires the handles like AddConnection but first removes
// the connection currently occupying the target input, in one step.
func (s *Store) ReplaceConnection(g domain.Graph, fromNode, fromHandle, toNode, toHandle string) (domain.Graph, string) {
	err := CheckConnection(g, fromNode, fromHandle, toNode, toHandle)
	switch {
	case err == nil:
		return s.appendConnection(g, fromNode, fromHandle, toNode, toHandle)
	case !errors.Is(err, ErrInputOccupied):
		return g, ""
	}

	existing, _ := g.ConnectionInto(toNode, toHandle)
	if existing.FromNodeID == fromNode && existing.FromHandleID == fromHandle {
		return g, existing.ID
	}
	without, _ := s.RemoveConnection(g, existing.ID)
	return s.appendConnection(without, fromNode, fromHandle, toNode, toHandle)
}

// RemoveConnection deletes a connection by id
func (s *Store) RemoveConnection(g domain.Graph, id string) (domain.Graph, bool) {
	i := slices.IndexFunc(g.Connections, func(c domain.Connection) bool { return c.ID == id })
	if i < 0 {
		return g, false
	}
	return domain.Graph{
		Nodes:       g.Nodes,
		Connections: slices.Delete(slices.Clone(g.Connections), i, i+1),
	}, true
}

// Sanitize repairs a graph read from storage or an import. Connections are
// dropped when an endpoint node is missing, when they loop on one node, when
// a handle is not declared by its node type, when they do not run from an
// output into an input, when the handle types differ, or when they write
// into an input that is already taken (the first one wins). Connections
// without an id get one. Nodes are kept as they are.
//
// Handles are checked against the declared set rather than the visible one
// so that connections to hidden fan-out slots survive as stale connections.
func (s *Store) Sanitize(g domain.Graph) domain.Graph {
	out := domain.Graph{
		Nodes:       slices.Clone(g.Nodes),
		Connections: make([]domain.Connection, 0, len(g.Connections)),
	}
	if out.Nodes == nil {
		out.Nodes = []domain.Node{}
	}

	type inputKey struct{ node, handle string }
	occupied := make(map[inputKey]bool)
	for _, c := range g.Connections {
		if !wellFormed(g, c) {
			continue
		}
		key := inputKey{c.ToNodeID, c.ToHandleID}
		if occupied[key] {
			continue
		}
		occupied[key] = true
		if c.ID == "" {
			c.ID = s.newID()
		}
		out.Connections = append(out.Connections, c)
	}
	return out
}

// wellFormed reports whether c joins a declared output to a declared input
// of the same type on two distinct existing nodes
func wellFormed(g domain.Graph, c domain.Connection) bool {
	if c.FromNodeID == c.ToNodeID {
		return false
	}
	src, ok := g.Node(c.FromNodeID)
	if !ok {
		return false
	}
	dst, ok := g.Node(c.ToNodeID)
	if !ok {
		return false
	}
	out, outDir, ok := domain.DeclaredHandle(src.Type, c.FromHandleID)
	if !ok || outDir != domain.DirectionOutput {
		return false
	}
	in, inDir, ok := domain.DeclaredHandle(dst.Type, c.ToHandleID)
	if !ok || inDir != domain.DirectionInput {
		return false
	}
	return domain.AreCompatible(out.Type, in.Type)
}

func (s *Store) appendConnection(g domain.Graph, fromNode, fromHandle, toNode, toHandle string) (domain.Graph, string) {
	conn := domain.Connection{
		ID:           s.newID(),
		FromNodeID:   fromNode,
		FromHandleID: fromHandle,
		ToNodeID:     toNode,
		ToHandleID:   toHandle,
	}
	return domain.Graph{
		Nodes:       g.Nodes,
		Connections: append(slices.Clone(g.Connections), conn),
	}, conn.ID
}
