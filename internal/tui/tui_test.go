package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/internal/adapter"
	"nodeflow/internal/domain"
	"nodeflow/internal/repository/sqlite"
	"nodeflow/internal/service"
)

const project = "p1"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCanvas(t *testing.T) (*Canvas, *service.GraphService, tcell.SimulationScreen) {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)

	reg := adapter.NewRegistry(quietLogger())
	reg.SetFallback(adapter.NewStub("", 0))

	var n atomic.Int64
	svc := service.NewGraphService(repo, reg, service.NewEventBus(), service.Options{
		IDGenerator: func() string { return fmt.Sprintf("id-%d", n.Add(1)) },
		Logger:      quietLogger(),
	})
	t.Cleanup(func() {
		svc.Close()
		repo.Close()
	})

	screen := tcell.NewSimulationScreen("")
	require.NoError(t, screen.Init())
	screen.SetSize(120, 40)
	t.Cleanup(screen.Fini)

	c := New(screen, svc, project, quietLogger())
	require.NoError(t, c.refresh(context.Background()))
	return c, svc, screen
}

func addNode(t *testing.T, svc *service.GraphService, typ domain.NodeType, x, y float64) string {
	t.Helper()
	n, err := svc.AddNode(context.Background(), project, typ, domain.Position{X: x, Y: y}, nil)
	require.NoError(t, err)
	return n.ID
}

func nodeAt(t *testing.T, svc *service.GraphService, id string) domain.Node {
	t.Helper()
	snap, err := svc.Snapshot(context.Background(), project)
	require.NoError(t, err)
	n, ok := snap.Graph.Node(id)
	require.True(t, ok)
	return n
}

func press(c *Canvas, x, y int) {
	c.HandleEvent(context.Background(), tcell.NewEventMouse(x, y, tcell.Button1, tcell.ModNone))
}

func release(c *Canvas, x, y int) {
	c.HandleEvent(context.Background(), tcell.NewEventMouse(x, y, tcell.ButtonNone, tcell.ModNone))
}

func key(c *Canvas, r rune) bool {
	return c.HandleEvent(context.Background(), tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
}

func screenText(s tcell.SimulationScreen) string {
	cells, w, h := s.GetContents()
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			runes := cells[y*w+x].Runes
			if len(runes) == 0 {
				b.WriteRune(' ')
				continue
			}
			b.WriteRune(runes[0])
		}
		b.WriteRune('\n')
	}
	return b.String()
}

func TestViewport(t *testing.T) {
	v := DefaultViewport()
	p := v.ToCanvas(10, 5)
	assert.Equal(t, domain.Position{X: 84, Y: 66}, p)

	x, y := v.ToCell(p)
	assert.Equal(t, 10, x)
	assert.Equal(t, 5, y)

	panned := v.Pan(-2, 1)
	x, y = panned.ToCell(p)
	assert.Equal(t, 12, x)
	assert.Equal(t, 4, y)

	x, y = v.ToCell(domain.Position{X: -1, Y: -1})
	assert.Equal(t, -1, x)
	assert.Equal(t, -1, y)
}

func TestHitTest(t *testing.T) {
	text := *domain.NewNode("a", domain.NodeTypeText, domain.Position{X: 0, Y: 0})
	gen := *domain.NewNode("b", domain.NodeTypeTextGenerator, domain.Position{X: 400, Y: 0})
	g := domain.Graph{Nodes: []domain.Node{text, gen}}

	tests := []struct {
		name string
		at   domain.Position
		want Hit
	}{
		{"empty canvas", domain.Position{X: 300, Y: 300}, Hit{Target: service.PointerTarget{Kind: "canvas"}}},
		{"header", domain.Position{X: 100, Y: 10}, Hit{Target: service.PointerTarget{Kind: "header", NodeID: "a"}, NodeID: "a"}},
		{"body", domain.Position{X: 100, Y: 55}, Hit{Target: service.PointerTarget{Kind: "canvas"}, NodeID: "a"}},
		{"output handle", domain.Position{X: 205, Y: 52}, Hit{
			Target: service.PointerTarget{Kind: "handle", NodeID: "a", HandleID: domain.HandleTextOutput}, NodeID: "a"}},
		{"input handle", domain.Position{X: 396, Y: 48}, Hit{
			Target: service.PointerTarget{Kind: "handle", NodeID: "b", HandleID: domain.HandleTextInput}, NodeID: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HitTest(g, tt.at))
		})
	}
}

func TestHitTestTopmostWins(t *testing.T) {
	under := *domain.NewNode("under", domain.NodeTypeText, domain.Position{X: 0, Y: 0})
	over := *domain.NewNode("over", domain.NodeTypeText, domain.Position{X: 50, Y: 10})
	g := domain.Graph{Nodes: []domain.Node{under, over}}

	assert.Equal(t, "over", HitTest(g, domain.Position{X: 100, Y: 20}).NodeID)
}

func TestAnchor(t *testing.T) {
	n := *domain.NewNode("a", domain.NodeTypeTextGenerator, domain.Position{X: 10, Y: 20})

	in, ok := Anchor(n, domain.HandleTextInput)
	require.True(t, ok)
	assert.Equal(t, 10.0, in.X)

	out, ok := Anchor(n, domain.HandleTextOutput)
	require.True(t, ok)
	assert.Equal(t, 10+NodeWidth, out.X)

	_, ok = Anchor(n, "nope")
	assert.False(t, ok)
}

func TestDragMovesNodeAsOneUndoStep(t *testing.T) {
	c, svc, _ := newCanvas(t)
	id := addNode(t, svc, domain.NodeTypeText, 80, 120)
	require.NoError(t, c.refresh(context.Background()))

	// header cell of the node, then drag 10 cells right and 5 down
	press(c, 12, 10)
	press(c, 17, 12)
	press(c, 22, 15)
	release(c, 22, 15)

	assert.Equal(t, domain.Position{X: 160, Y: 180}, nodeAt(t, svc, id).Position)

	key(c, 'u')
	assert.Equal(t, domain.Position{X: 80, Y: 120}, nodeAt(t, svc, id).Position)
}

func TestClickSelects(t *testing.T) {
	c, svc, _ := newCanvas(t)
	id := addNode(t, svc, domain.NodeTypeText, 80, 120)
	require.NoError(t, c.refresh(context.Background()))

	press(c, 12, 10)
	release(c, 12, 10)
	assert.Equal(t, []string{id}, c.snap.Selection)

	// click on empty canvas clears it
	press(c, 80, 30)
	release(c, 80, 30)
	assert.Empty(t, c.snap.Selection)
}

func TestConnectionDrag(t *testing.T) {
	c, svc, _ := newCanvas(t)
	text := addNode(t, svc, domain.NodeTypeText, 80, 120)
	gen := addNode(t, svc, domain.NodeTypeTextGenerator, 400, 120)
	require.NoError(t, c.refresh(context.Background()))

	// text_output of the text node to text_input of the generator
	press(c, 35, 14)
	press(c, 45, 14)
	press(c, 50, 14)
	release(c, 50, 14)

	require.Len(t, c.snap.Graph.Connections, 1)
	conn := c.snap.Graph.Connections[0]
	assert.Equal(t, text, conn.FromNodeID)
	assert.Equal(t, gen, conn.ToNodeID)
	assert.Equal(t, "connected", c.status)
}

func TestKeys(t *testing.T) {
	c, svc, screen := newCanvas(t)
	id := addNode(t, svc, domain.NodeTypeText, 80, 120)
	require.NoError(t, c.refresh(context.Background()))

	press(c, 12, 10)
	release(c, 12, 10)

	key(c, 'd')
	assert.Len(t, c.snap.Graph.Nodes, 2)

	key(c, 'x')
	assert.Len(t, c.snap.Graph.Nodes, 1)
	assert.NotEqual(t, id, c.snap.Graph.Nodes[0].ID)

	key(c, 's')
	assert.Equal(t, "saved", c.status)

	key(c, '1')
	assert.Len(t, c.snap.Graph.Nodes, 2)
	assert.Equal(t, domain.NodeTypeText, c.snap.Graph.Nodes[1].Type)

	c.Draw()
	assert.Contains(t, screenText(screen), "text")
	assert.Contains(t, screenText(screen), project)

	assert.True(t, key(c, 'q'))
}
