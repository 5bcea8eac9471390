// Package graphstore implements the authoritative mutations of a node graph.
//
// Every operation takes a domain.Graph value and returns a new one; the input
// is never modified, so previous graphs stay valid as history snapshots.
// Invalid mutations (self loops, occupied inputs, unknown ids) are rejected
// silently: the graph is returned unchanged together with a false/empty
// result, and CheckConnection reports the reason for UI feedback.
package graphstore

import (
	"errors"
	"slices"

	"github.com/google/uuid"

	"nodeflow/internal/domain"
)

var (
	ErrUnknownNode         = errors.New("graphstore: node not found")
	ErrUnknownHandle       = errors.New("graphstore: handle not found on node")
	ErrDirection           = errors.New("graphstore: connection must run from an output to an input")
	ErrSelfLoop            = errors.New("graphstore: a node cannot connect to itself")
	ErrIncompatibleHandles = errors.New("graphstore: handle types differ")
	ErrInputOccupied       = errors.New("graphstore: input already has a connection")
)

// DefaultDuplicateOffset is where copies land relative to their source
var DefaultDuplicateOffset = domain.Position{X: 40, Y: 40}

// Store applies graph mutations. It holds no graph itself, only the policy
// needed to create new records.
type Store struct {
	newID  func() string
	offset domain.Position
}

// Option configures a Store
type Option func(*Store)

// WithIDGenerator replaces the UUID generator, mainly for tests
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithDuplicateOffset sets the displacement applied to duplicated nodes
func WithDuplicateOffset(p domain.Position) Option {
	return func(s *Store) { s.offset = p }
}

// New creates a Store
func New(opts ...Option) *Store {
	s := &Store{
		newID:  uuid.NewString,
		offset: DefaultDuplicateOffset,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNode appends a node of type t at pos. A nil or mismatched payload is
// replaced by the type defaults. Unknown types leave g unchanged and return "".
func (s *Store) AddNode(g domain.Graph, t domain.NodeType, pos domain.Position, data domain.Payload) (domain.Graph, string) {
	if !t.Valid() {
		return g, ""
	}
	if data == nil || data.NodeType() != t {
		data = domain.NewPayload(t)
	} else {
		data = domain.ClonePayload(data)
	}

	node := domain.Node{ID: s.newID(), Type: t, Position: pos, Data: data}
	out := domain.Graph{
		Nodes:       append(slices.Clone(g.Nodes), node),
		Connections: g.Connections,
	}
	return out, node.ID
}

// UpdateNodeData shallow-merges patch into the node's payload
func (s *Store) UpdateNodeData(g domain.Graph, id string, patch domain.Patch) (domain.Graph, bool) {
	return s.mapNode(g, id, func(n domain.Node) (domain.Node, bool) {
		data, err := domain.ApplyPatch(n.Data, patch)
		if err != nil {
			return n, false
		}
		n.Data = data
		return n, true
	})
}

// SetLayoutCache stores measured handle offsets on a node
func (s *Store) SetLayoutCache(g domain.Graph, id string, cache domain.LayoutCache) (domain.Graph, bool) {
	return s.mapNode(g, id, func(n domain.Node) (domain.Node, bool) {
		state := n.Data.State()
		state.Layout = cache
		n.Data = domain.WithState(n.Data, state)
		return n, true
	})
}

// ApplyOutput merges a generator result into a node, clearing loading and error
func (s *Store) ApplyOutput(g domain.Graph, id string, out domain.Output) (domain.Graph, bool) {
	return s.mapNode(g, id, func(n domain.Node) (domain.Node, bool) {
		n.Data = domain.WithOutput(n.Data, out)
		return n, true
	})
}

// MoveNode replaces a node's position. The canvas is unbounded.
func (s *Store) MoveNode(g domain.Graph, id string, pos domain.Position) (domain.Graph, bool) {
	return s.mapNode(g, id, func(n domain.Node) (domain.Node, bool) {
		n.Position = pos
		return n, true
	})
}

// DeleteNode removes a node and every connection touching it
func (s *Store) DeleteNode(g domain.Graph, id string) domain.Graph {
	return s.DeleteNodes(g, []string{id})
}

// DeleteNodes removes a set of nodes and their connections in one step
func (s *Store) DeleteNodes(g domain.Graph, ids []string) domain.Graph {
	doomed := toSet(ids)
	if !slices.ContainsFunc(g.Nodes, func(n domain.Node) bool { return doomed[n.ID] }) {
		return g
	}

	out := domain.Graph{
		Nodes:       make([]domain.Node, 0, len(g.Nodes)),
		Connections: make([]domain.Connection, 0, len(g.Connections)),
	}
	for _, n := range g.Nodes {
		if !doomed[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, c := range g.Connections {
		if !doomed[c.FromNodeID] && !doomed[c.ToNodeID] {
			out.Connections = append(out.Connections, c)
		}
	}
	return out
}

// DuplicateNode copies a node at the duplicate offset. Connections are not
// copied. Returns "" when id is unknown.
func (s *Store) DuplicateNode(g domain.Graph, id string) (domain.Graph, string) {
	out, ids := s.DuplicateNodes(g, []string{id})
	if len(ids) == 0 {
		return g, ""
	}
	return out, ids[0]
}

// DuplicateNodes copies a set of nodes, all shifted by the same offset so
// their relative layout is preserved. Connections, including those between
// the duplicated nodes, are not recreated.
func (s *Store) DuplicateNodes(g domain.Graph, ids []string) (domain.Graph, []string) {
	var (
		copies []domain.Node
		newIDs []string
		seen   = make(map[string]bool)
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		src, ok := g.Node(id)
		if !ok {
			continue
		}
		dup := domain.Node{
			ID:       s.newID(),
			Type:     src.Type,
			Position: src.Position.Add(s.offset),
			Data:     domain.DuplicatePayload(src.Data),
		}
		copies = append(copies, dup)
		newIDs = append(newIDs, dup.ID)
	}
	if len(copies) == 0 {
		return g, nil
	}

	out := domain.Graph{
		Nodes:       append(slices.Clone(g.Nodes), copies...),
		Connections: g.Connections,
	}
	return out, newIDs
}

// ResetNode clears a node's generated outputs, loading flag and error
func (s *Store) ResetNode(g domain.Graph, id string) (domain.Graph, bool) {
	return s.mapNode(g, id, func(n domain.Node) (domain.Node, bool) {
		n.Data = domain.ResetPayload(n.Data)
		return n, true
	})
}

// ResetNodes resets every existing node of ids in one step
func (s *Store) ResetNodes(g domain.Graph, ids []string) domain.Graph {
	targets := toSet(ids)
	var changed bool
	nodes := slices.Clone(g.Nodes)
	for i, n := range nodes {
		if targets[n.ID] {
			nodes[i].Data = domain.ResetPayload(n.Data)
			changed = true
		}
	}
	if !changed {
		return g
	}
	return domain.Graph{Nodes: nodes, Connections: g.Connections}
}

// mapNode replaces node id with fn's result. The graph is returned
// unchanged when the node is missing or fn declines.
func (s *Store) mapNode(g domain.Graph, id string, fn func(domain.Node) (domain.Node, bool)) (domain.Graph, bool) {
	i := g.NodeIndex(id)
	if i < 0 {
		return g, false
	}
	next, ok := fn(g.Nodes[i])
	if !ok {
		return g, false
	}
	nodes := slices.Clone(g.Nodes)
	nodes[i] = next
	return domain.Graph{Nodes: nodes, Connections: g.Connections}, true
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
