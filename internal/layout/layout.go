// Package layout derives where each visible handle of a node is anchored.
//
// Expanded nodes use offsets measured by the renderer and cached on the node;
// minimized nodes are laid out analytically.
package layout

import (
	"nodeflow/internal/domain"
)

const (
	// HeaderHeight is the height of a node's title bar
	HeaderHeight = 36.0
	// PreviewHeight is the default height of a minimized node's preview
	PreviewHeight = 120.0
	// SliceHeight is the height of one image slice in a minimized
	// image_generator or character_extractor preview
	SliceHeight = 80.0
	// RowHeight is the spacing used to estimate unmeasured expanded handles
	RowHeight = 28.0
)

// Anchor is the vertical position of one handle within the node bounds
type Anchor struct {
	HandleID string            `json:"handleId"`
	Type     domain.HandleType `json:"type"`
	Offset   float64           `json:"offset"`
	// Measured is false when the offset is an estimate awaiting a measurement
	Measured bool `json:"measured"`
}

// Geometry lists the visible anchors of a node in static order
type Geometry struct {
	Minimized bool     `json:"minimized"`
	Height    float64  `json:"height"`
	Inputs    []Anchor `json:"inputs"`
	Outputs   []Anchor `json:"outputs"`
}

// Resolve computes the anchors of n's visible handles
func Resolve(n domain.Node, minimized bool) Geometry {
	inputs := domain.VisibleInputs(n)
	outputs := domain.VisibleOutputs(n)
	cache := n.State().Layout

	if minimized {
		return resolveMinimized(n.Type, inputs, outputs, cache)
	}

	geo := Geometry{
		Inputs:  expanded(inputs, cache),
		Outputs: expanded(outputs, cache),
	}
	geo.Height = HeaderHeight + RowHeight*float64(max(len(inputs), len(outputs)))
	for _, a := range append(geo.Inputs, geo.Outputs...) {
		geo.Height = max(geo.Height, a.Offset+RowHeight/2)
	}
	return geo
}

func expanded(handles []domain.HandleSpec, cache domain.LayoutCache) []Anchor {
	anchors := make([]Anchor, len(handles))
	for i, h := range handles {
		anchors[i] = Anchor{HandleID: h.ID, Type: h.Type}
		if y, ok := cache.HandleYOffsets[h.ID]; ok {
			anchors[i].Offset = y
			anchors[i].Measured = true
			continue
		}
		anchors[i].Offset = HeaderHeight + RowHeight*(float64(i)+0.5)
	}
	return anchors
}

func resolveMinimized(t domain.NodeType, inputs, outputs []domain.HandleSpec, cache domain.LayoutCache) Geometry {
	preview := PreviewHeight
	if cache.MinimizedHeight > 0 {
		preview = cache.MinimizedHeight
	}

	geo := Geometry{Minimized: true}
	if slicedPreview(t) {
		preview = max(preview, SliceHeight*float64(len(outputs)))
		geo.Outputs = make([]Anchor, len(outputs))
		for i, h := range outputs {
			geo.Outputs[i] = Anchor{
				HandleID: h.ID,
				Type:     h.Type,
				Offset:   HeaderHeight + SliceHeight*(float64(i)+0.5),
				Measured: true,
			}
		}
	} else {
		geo.Outputs = distribute(outputs, preview)
	}
	geo.Inputs = distribute(inputs, preview)
	geo.Height = HeaderHeight + preview
	return geo
}

// distribute spaces handles evenly below the header
func distribute(handles []domain.HandleSpec, height float64) []Anchor {
	anchors := make([]Anchor, len(handles))
	step := height / float64(len(handles)+1)
	for i, h := range handles {
		anchors[i] = Anchor{
			HandleID: h.ID,
			Type:     h.Type,
			Offset:   HeaderHeight + step*float64(i+1),
			Measured: true,
		}
	}
	return anchors
}

// slicedPreview reports whether a minimized node previews one image slice
// per output handle
func slicedPreview(t domain.NodeType) bool {
	return t == domain.NodeTypeImageGenerator || t == domain.NodeTypeCharacterExtractor
}

// Stale returns the connections of g with an endpoint handle that is not in
// the visible set of its node. They stay in the graph but cannot be drawn.
func Stale(g domain.Graph) []domain.Connection {
	var stale []domain.Connection
	for _, c := range g.Connections {
		if !visible(g, c.FromNodeID, c.FromHandleID) || !visible(g, c.ToNodeID, c.ToHandleID) {
			stale = append(stale, c)
		}
	}
	return stale
}

func visible(g domain.Graph, nodeID, handleID string) bool {
	n, ok := g.Node(nodeID)
	if !ok {
		return false
	}
	_, _, ok = domain.VisibleHandle(n, handleID)
	return ok
}

// HandleAt returns the anchor of geo closest to offset within tolerance,
// searching outputs or inputs according to dir
func HandleAt(geo Geometry, dir domain.Direction, offset, tolerance float64) (Anchor, bool) {
	anchors := geo.Inputs
	if dir == domain.DirectionOutput {
		anchors = geo.Outputs
	}

	var (
		best  Anchor
		found bool
		dist  = tolerance
	)
	for _, a := range anchors {
		d := a.Offset - offset
		if d < 0 {
			d = -d
		}
		if d <= dist {
			best, dist, found = a, d, true
		}
	}
	return best, found
}
