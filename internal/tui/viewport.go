package tui

import (
	"slices"

	"nodeflow/internal/domain"
	"nodeflow/internal/layout"
	"nodeflow/internal/service"
)

const (
	// NodeWidth is the canvas width of every node
	NodeWidth = 200.0
	// HandleTolerance is how far from a node edge or anchor a press still
	// hits a handle, in canvas units
	HandleTolerance = 12.0
)

// Viewport maps terminal cells to canvas coordinates
type Viewport struct {
	// Origin is the canvas position shown in the top-left cell
	Origin domain.Position
	// CellWidth and CellHeight are the canvas units covered by one cell
	CellWidth  float64
	CellHeight float64
}

// DefaultViewport shows the canvas origin at roughly 8x12 units per cell
func DefaultViewport() Viewport {
	return Viewport{CellWidth: 8, CellHeight: 12}
}

// ToCanvas returns the canvas position at the centre of cell (x, y)
func (v Viewport) ToCanvas(x, y int) domain.Position {
	return domain.Position{
		X: v.Origin.X + (float64(x)+0.5)*v.CellWidth,
		Y: v.Origin.Y + (float64(y)+0.5)*v.CellHeight,
	}
}

// ToCell returns the cell containing canvas position p
func (v Viewport) ToCell(p domain.Position) (int, int) {
	return floor((p.X - v.Origin.X) / v.CellWidth), floor((p.Y - v.Origin.Y) / v.CellHeight)
}

// Pan moves the viewport by dx, dy cells
func (v Viewport) Pan(dx, dy int) Viewport {
	v.Origin.X += float64(dx) * v.CellWidth
	v.Origin.Y += float64(dy) * v.CellHeight
	return v
}

func floor(f float64) int {
	i := int(f)
	if f < 0 && float64(i) != f {
		i--
	}
	return i
}

// Hit is what lies under a canvas position
type Hit struct {
	Target service.PointerTarget
	// NodeID is set whenever the position is inside a node, including its body
	NodeID string
}

// Bounds returns the width and height a node occupies on the canvas
func Bounds(n domain.Node) (float64, float64) {
	return NodeWidth, geometry(n).Height
}

func geometry(n domain.Node) layout.Geometry {
	return layout.Resolve(n, n.State().Minimized)
}

// HitTest finds the handle, header or node body at p. Later nodes are drawn
// on top and win.
func HitTest(g domain.Graph, p domain.Position) Hit {
	for _, n := range slices.Backward(g.Nodes) {
		geo := geometry(n)
		local := p.Sub(n.Position)
		if local.X < -HandleTolerance || local.X > NodeWidth+HandleTolerance || local.Y < 0 || local.Y > geo.Height {
			continue
		}

		if local.X <= HandleTolerance {
			if a, ok := layout.HandleAt(geo, domain.DirectionInput, local.Y, HandleTolerance); ok {
				return handleHit(n.ID, a.HandleID)
			}
		}
		if local.X >= NodeWidth-HandleTolerance {
			if a, ok := layout.HandleAt(geo, domain.DirectionOutput, local.Y, HandleTolerance); ok {
				return handleHit(n.ID, a.HandleID)
			}
		}
		if local.X < 0 || local.X > NodeWidth {
			continue
		}
		if local.Y < layout.HeaderHeight {
			return Hit{Target: service.PointerTarget{Kind: "header", NodeID: n.ID}, NodeID: n.ID}
		}
		return Hit{Target: service.PointerTarget{Kind: "canvas"}, NodeID: n.ID}
	}
	return Hit{Target: service.PointerTarget{Kind: "canvas"}}
}

func handleHit(nodeID, handleID string) Hit {
	return Hit{
		Target: service.PointerTarget{Kind: "handle", NodeID: nodeID, HandleID: handleID},
		NodeID: nodeID,
	}
}

// Anchor returns the canvas position of a visible handle
func Anchor(n domain.Node, handleID string) (domain.Position, bool) {
	geo := geometry(n)
	for _, a := range geo.Inputs {
		if a.HandleID == handleID {
			return n.Position.Add(domain.Position{Y: a.Offset}), true
		}
	}
	for _, a := range geo.Outputs {
		if a.HandleID == handleID {
			return n.Position.Add(domain.Position{X: NodeWidth, Y: a.Offset}), true
		}
	}
	return domain.Position{}, false
}
