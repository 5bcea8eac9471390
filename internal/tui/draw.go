package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gdamore/tcell/v2"

	"nodeflow/internal/domain"
	"nodeflow/internal/layout"
)

var (
	styleDefault   = tcell.StyleDefault
	styleBorder    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleSelected  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleTitle     = tcell.StyleDefault.Bold(true)
	styleError     = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleLoading   = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	styleEdge      = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleStatusBar = tcell.StyleDefault.Reverse(true)
)

var handleStyles = map[domain.HandleType]tcell.Style{
	domain.HandleTypeText:  tcell.StyleDefault.Foreground(tcell.ColorGreen),
	domain.HandleTypeImage: tcell.StyleDefault.Foreground(tcell.ColorFuchsia),
	domain.HandleTypeVideo: tcell.StyleDefault.Foreground(tcell.ColorOrange),
}

// Draw renders the current snapshot and shows it
func (c *Canvas) Draw() {
	c.screen.Clear()
	g := c.snap.Graph

	for _, conn := range g.Connections {
		c.drawConnection(g, conn)
	}
	for _, n := range g.Nodes {
		c.drawNode(n, slices.Contains(c.snap.Selection, n.ID))
	}
	c.drawStatus()
	c.screen.Show()
}

func (c *Canvas) drawNode(n domain.Node, selected bool) {
	w, h := Bounds(n)
	x0, y0 := c.view.ToCell(n.Position)
	x1, y1 := c.view.ToCell(n.Position.Add(domain.Position{X: w, Y: h}))
	if x1 <= x0+1 {
		x1 = x0 + 2
	}
	if y1 <= y0+1 {
		y1 = y0 + 2
	}

	border := styleBorder
	if selected {
		border = styleSelected
	}
	c.box(x0, y0, x1, y1, border)

	title := string(n.Type)
	state := n.State()
	switch {
	case state.IsLoading:
		title += " …"
	case state.Minimized:
		title += " ▾"
	}
	c.text(x0+1, y0+1, x1-1, title, styleTitle)

	row := y0 + 2
	if state.Error != "" && row < y1 {
		c.text(x0+1, row, x1-1, "! "+state.Error, styleError)
		row++
	} else if state.IsLoading && row < y1 {
		c.text(x0+1, row, x1-1, "generating", styleLoading)
		row++
	}
	if summary := summarize(n); summary != "" && row < y1 {
		c.text(x0+1, row, x1-1, summary, styleDefault)
	}

	geo := layout.Resolve(n, state.Minimized)
	for _, a := range geo.Inputs {
		_, y := c.view.ToCell(n.Position.Add(domain.Position{Y: a.Offset}))
		c.screen.SetContent(x0, y, '●', nil, handleStyles[a.Type])
	}
	for _, a := range geo.Outputs {
		_, y := c.view.ToCell(n.Position.Add(domain.Position{X: w, Y: a.Offset}))
		c.screen.SetContent(x1, y, '●', nil, handleStyles[a.Type])
	}
}

// summarize is the one-line body preview of a node
func summarize(n domain.Node) string {
	switch d := n.Data.(type) {
	case *domain.TextData:
		return d.Text
	case *domain.TextGeneratorData:
		if d.Output != "" {
			return d.Output
		}
		return d.Instruction
	case *domain.ImageGeneratorData:
		done := 0
		for _, img := range d.Images {
			if img != "" {
				done++
			}
		}
		return fmt.Sprintf("%d/%d images", done, d.NumberOfImages)
	}
	return ""
}

func (c *Canvas) drawConnection(g domain.Graph, conn domain.Connection) {
	from, ok := g.Node(conn.FromNodeID)
	if !ok {
		return
	}
	to, ok := g.Node(conn.ToNodeID)
	if !ok {
		return
	}
	// stale connections stay in the graph but are not drawn
	a, ok := Anchor(from, conn.FromHandleID)
	if !ok {
		return
	}
	b, ok := Anchor(to, conn.ToHandleID)
	if !ok {
		return
	}
	x0, y0 := c.view.ToCell(a)
	x1, y1 := c.view.ToCell(b)
	c.line(x0, y0, x1, y1, styleEdge)
}

func (c *Canvas) drawStatus() {
	w, h := c.screen.Size()
	if h == 0 {
		return
	}
	left := fmt.Sprintf(" %s  nodes:%d", c.project, len(c.snap.Graph.Nodes))
	if c.snap.Dirty {
		left += " *"
	}
	if c.status != "" {
		left += "  " + c.status
	}
	right := "1-8 add  g gen  d dup  x del  z reset  m min  u/r undo/redo  s save  q quit "
	bar := left + strings.Repeat(" ", max(1, w-len([]rune(left))-len(right))) + right
	c.text(0, h-1, w, bar, styleStatusBar)
}

// text draws s starting at (x, y), clipped before column limit
func (c *Canvas) text(x, y, limit int, s string, style tcell.Style) {
	for _, r := range s {
		if x >= limit {
			return
		}
		c.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func (c *Canvas) box(x0, y0, x1, y1 int, style tcell.Style) {
	for x := x0 + 1; x < x1; x++ {
		c.screen.SetContent(x, y0, '─', nil, style)
		c.screen.SetContent(x, y1, '─', nil, style)
	}
	for y := y0 + 1; y < y1; y++ {
		c.screen.SetContent(x0, y, '│', nil, style)
		c.screen.SetContent(x1, y, '│', nil, style)
	}
	c.screen.SetContent(x0, y0, '┌', nil, style)
	c.screen.SetContent(x1, y0, '┐', nil, style)
	c.screen.SetContent(x0, y1, '└', nil, style)
	c.screen.SetContent(x1, y1, '┘', nil, style)
}

// line draws a straight edge between two cells with Bresenham's algorithm
func (c *Canvas) line(x0, y0, x1, y1 int, style tcell.Style) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		c.screen.SetContent(x0, y0, '·', nil, style)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
