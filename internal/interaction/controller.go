// Package interaction turns pointer gestures on the canvas into graph
// mutations: node drags, connection drags and selection-aware bulk actions.
package interaction

import (
	"errors"

	"nodeflow/internal/domain"
	"nodeflow/internal/graphstore"
)

// Document is the graph a controller edits. Apply with skipHistory set
// replaces the present state without creating an undo entry.
type Document interface {
	Graph() domain.Graph
	Apply(next domain.Graph, skipHistory bool)
}

// State is the gesture state of the controller
type State int

const (
	StateIdle State = iota
	StateNodeDragging
	StateConnectionDragging
)

func (s State) String() string {
	switch s {
	case StateNodeDragging:
		return "node_dragging"
	case StateConnectionDragging:
		return "connection_dragging"
	}
	return "idle"
}

// TargetKind classifies what lies under the pointer
type TargetKind int

const (
	TargetCanvas TargetKind = iota
	TargetNodeHeader
	TargetHandle
)

// Target is the hit-test result supplied by the rendering surface
type Target struct {
	Kind     TargetKind
	NodeID   string
	HandleID string
}

// Canvas is the empty-canvas target
var Canvas = Target{Kind: TargetCanvas}

// Header targets the title bar of a node
func Header(nodeID string) Target {
	return Target{Kind: TargetNodeHeader, NodeID: nodeID}
}

// Handle targets a connection point of a node
func Handle(nodeID, handleID string) Target {
	return Target{Kind: TargetHandle, NodeID: nodeID, HandleID: handleID}
}

// NodeDrag describes an in-progress node drag
type NodeDrag struct {
	NodeID string
	// Offset is the pointer position minus the node position at drag start
	Offset domain.Position
	Origin domain.Position
	moved  bool
}

// ConnectionDrag describes a provisional edge following the pointer
type ConnectionDrag struct {
	NodeID    string
	HandleID  string
	Type      domain.HandleType
	Direction domain.Direction
	Pointer   domain.Position
}

// OutcomeKind tells what a pointer release did
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeMoved
	OutcomeConnected
	OutcomeRejected
	OutcomeReplacementProposed
	OutcomeCancelled
)

// Outcome is the result of a pointer release
type Outcome struct {
	Kind         OutcomeKind
	NodeID       string
	ConnectionID string
	// Reason is set for rejected connections
	Reason      error
	Replacement *Replacement
}

// Replacement proposes swapping the writer of an occupied input
type Replacement struct {
	Existing     domain.Connection `json:"existing"`
	FromNodeID   string            `json:"fromNodeId"`
	FromHandleID string            `json:"fromHandleId"`
	ToNodeID     string            `json:"toNodeId"`
	ToHandleID   string            `json:"toHandleId"`
}

// Hover is purely visual feedback for a candidate drop target
type Hover struct {
	Active   bool `json:"active"`
	Valid    bool `json:"valid"`
	Occupied bool `json:"occupied"`
}

// Controller is the canvas gesture state machine. It is not safe for
// concurrent use.
type Controller struct {
	store *graphstore.Store
	doc   Document

	state   State
	node    NodeDrag
	conn    ConnectionDrag
	pending *Replacement

	selection []string
}

// New creates an idle controller editing doc
func New(store *graphstore.Store, doc Document) *Controller {
	return &Controller{store: store, doc: doc}
}

func (c *Controller) State() State { return c.state }

// NodeDrag returns the active node drag, if any
func (c *Controller) NodeDrag() (NodeDrag, bool) {
	return c.node, c.state == StateNodeDragging
}

// ConnectionDrag returns the active connection drag, if any
func (c *Controller) ConnectionDrag() (ConnectionDrag, bool) {
	return c.conn, c.state == StateConnectionDragging
}

// PendingReplacement returns the replacement awaiting confirmation
func (c *Controller) PendingReplacement() (Replacement, bool) {
	if c.pending == nil {
		return Replacement{}, false
	}
	return *c.pending, true
}

// PointerDown starts a gesture and reports whether one began. Presses while
// a gesture is active are ignored.
func (c *Controller) PointerDown(target Target, pos domain.Position) bool {
	if c.state != StateIdle {
		return false
	}
	g := c.doc.Graph()

	switch target.Kind {
	case TargetNodeHeader:
		n, ok := g.Node(target.NodeID)
		if !ok {
			return false
		}
		c.node = NodeDrag{NodeID: n.ID, Offset: pos.Sub(n.Position), Origin: n.Position}
		c.state = StateNodeDragging
		return true

	case TargetHandle:
		n, ok := g.Node(target.NodeID)
		if !ok {
			return false
		}
		spec, dir, ok := domain.VisibleHandle(n, target.HandleID)
		if !ok {
			return false
		}
		if dir == domain.DirectionInput && g.IsInputConnected(n.ID, spec.ID) {
			return false
		}
		c.conn = ConnectionDrag{NodeID: n.ID, HandleID: spec.ID, Type: spec.Type, Direction: dir, Pointer: pos}
		c.pending = nil
		c.state = StateConnectionDragging
		return true
	}
	return false
}

// PointerMove advances the active gesture
func (c *Controller) PointerMove(pos domain.Position) {
	switch c.state {
	case StateNodeDragging:
		next, ok := c.store.MoveNode(c.doc.Graph(), c.node.NodeID, pos.Sub(c.node.Offset))
		if !ok {
			c.state = StateIdle
			return
		}
		c.doc.Apply(next, true)
		c.node.moved = true
	case StateConnectionDragging:
		c.conn.Pointer = pos
	}
}

// PointerUp ends the active gesture over target
func (c *Controller) PointerUp(target Target, pos domain.Position) Outcome {
	switch c.state {
	case StateNodeDragging:
		c.state = StateIdle
		return c.finishNodeDrag(pos)
	case StateConnectionDragging:
		c.state = StateIdle
		return c.finishConnectionDrag(target)
	}
	return Outcome{}
}

// Cancel aborts the active gesture. A dragged node returns to its origin.
func (c *Controller) Cancel() {
	if c.state == StateNodeDragging && c.node.moved {
		if next, ok := c.store.MoveNode(c.doc.Graph(), c.node.NodeID, c.node.Origin); ok {
			c.doc.Apply(next, true)
		}
	}
	c.state = StateIdle
}

// finishNodeDrag commits the drag as a single undo entry. The present state
// is first rewritten to hold the node at its origin so undo returns there
// while edits made during the drag survive.
func (c *Controller) finishNodeDrag(pos domain.Position) Outcome {
	drag := c.node
	g := c.doc.Graph()
	if !g.HasNode(drag.NodeID) {
		return Outcome{}
	}
	if !drag.moved {
		return Outcome{Kind: OutcomeNone, NodeID: drag.NodeID}
	}

	final, _ := c.store.MoveNode(g, drag.NodeID, pos.Sub(drag.Offset))
	base, _ := c.store.MoveNode(final, drag.NodeID, drag.Origin)
	c.doc.Apply(base, true)
	c.doc.Apply(final, false)
	return Outcome{Kind: OutcomeMoved, NodeID: drag.NodeID}
}

func (c *Controller) finishConnectionDrag(target Target) Outcome {
	if target.Kind != TargetHandle {
		return Outcome{Kind: OutcomeCancelled}
	}

	fromNode, fromHandle, toNode, toHandle, ok := c.orient(target)
	if !ok {
		return Outcome{Kind: OutcomeCancelled}
	}

	g := c.doc.Graph()
	err := graphstore.CheckConnection(g, fromNode, fromHandle, toNode, toHandle)
	switch {
	case err == nil:
		next, id := c.store.AddConnection(g, fromNode, fromHandle, toNode, toHandle)
		c.doc.Apply(next, false)
		return Outcome{Kind: OutcomeConnected, ConnectionID: id}

	case errors.Is(err, graphstore.ErrInputOccupied):
		existing, _ := g.ConnectionInto(toNode, toHandle)
		c.pending = &Replacement{
			Existing:     existing,
			FromNodeID:   fromNode,
			FromHandleID: fromHandle,
			ToNodeID:     toNode,
			ToHandleID:   toHandle,
		}
		return Outcome{Kind: OutcomeReplacementProposed, Reason: err, Replacement: c.pending}
	}
	return Outcome{Kind: OutcomeRejected, Reason: err}
}

// orient maps the drag origin and the drop target onto output->input order.
// Dropping on a handle of the same direction as the origin is not a
// connection attempt.
func (c *Controller) orient(target Target) (fromNode, fromHandle, toNode, toHandle string, ok bool) {
	n, found := c.doc.Graph().Node(target.NodeID)
	if !found {
		return "", "", "", "", false
	}
	_, dir, found := domain.VisibleHandle(n, target.HandleID)
	if !found || dir == c.conn.Direction {
		return "", "", "", "", false
	}
	if c.conn.Direction == domain.DirectionOutput {
		return c.conn.NodeID, c.conn.HandleID, target.NodeID, target.HandleID, true
	}
	return target.NodeID, target.HandleID, c.conn.NodeID, c.conn.HandleID, true
}

// Hover evaluates target as a drop candidate for the active connection drag.
// It never changes the graph.
func (c *Controller) Hover(target Target) Hover {
	if c.state != StateConnectionDragging || target.Kind != TargetHandle || target.NodeID == c.conn.NodeID {
		return Hover{}
	}
	g := c.doc.Graph()
	n, ok := g.Node(target.NodeID)
	if !ok {
		return Hover{}
	}
	spec, dir, ok := domain.VisibleHandle(n, target.HandleID)
	if !ok || dir == c.conn.Direction {
		return Hover{}
	}

	h := Hover{Active: true, Valid: domain.AreCompatible(c.conn.Type, spec.Type)}
	if dir == domain.DirectionInput {
		h.Occupied = g.IsInputConnected(n.ID, spec.ID)
	}
	return h
}

// ConfirmReplacement applies the pending replacement proposal
func (c *Controller) ConfirmReplacement() (string, bool) {
	r := c.pending
	c.pending = nil
	if r == nil {
		return "", false
	}
	next, id := c.store.ReplaceConnection(c.doc.Graph(), r.FromNodeID, r.FromHandleID, r.ToNodeID, r.ToHandleID)
	if id == "" {
		return "", false
	}
	c.doc.Apply(next, false)
	return id, true
}

// DismissReplacement drops the pending replacement proposal
func (c *Controller) DismissReplacement() {
	c.pending = nil
}
