package graphstore

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/internal/domain"
)

// sequentialIDs returns a deterministic id generator: id-1, id-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore() *Store {
	return New(WithIDGenerator(sequentialIDs()))
}

func TestAddNode(t *testing.T) {
	s := newTestStore()

	t.Run("assigns fresh ids and type defaults", func(t *testing.T) {
		g, a := s.AddNode(domain.NewGraph(), domain.NodeTypeCharacterGenerator, domain.Position{X: 10}, nil)
		g, b := s.AddNode(g, domain.NodeTypeCharacterGenerator, domain.Position{X: 20}, nil)

		require.NotEmpty(t, a)
		require.NotEqual(t, a, b)
		require.Len(t, g.Nodes, 2)

		data := g.Nodes[0].Data.(*domain.CharacterGeneratorData)
		assert.Equal(t, "photorealistic", data.Style)
		assert.Equal(t, "character_sheet", data.Layout)
		assert.Equal(t, "3:4", data.AspectRatio)
	})

	t.Run("uses given payload", func(t *testing.T) {
		g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeText, domain.Position{}, &domain.TextData{Text: "hello"})
		node, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, "hello", node.Data.(*domain.TextData).Text)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		g := domain.NewGraph()
		out, id := s.AddNode(g, domain.NodeType("hologram"), domain.Position{}, nil)
		assert.Empty(t, id)
		assert.Empty(t, out.Nodes)
	})

	t.Run("does not modify input graph", func(t *testing.T) {
		g, _ := s.AddNode(domain.NewGraph(), domain.NodeTypeText, domain.Position{}, nil)
		before := g.Clone()
		s.AddNode(g, domain.NodeTypeText, domain.Position{}, nil)
		assert.True(t, domain.Equal(before, g))
		assert.Len(t, g.Nodes, 1)
	})
}

func TestUpdateNodeData(t *testing.T) {
	s := newTestStore()
	g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeImageGenerator, domain.Position{}, nil)

	t.Run("shallow merges fields", func(t *testing.T) {
		out, ok := s.UpdateNodeData(g, id, domain.Patch{"prompt": "a fox", "numberOfImages": 3})
		require.True(t, ok)

		data := out.Nodes[0].Data.(*domain.ImageGeneratorData)
		assert.Equal(t, "a fox", data.Prompt)
		assert.Equal(t, 3, data.NumberOfImages)
		assert.Equal(t, "1:1", data.AspectRatio)
		assert.Empty(t, g.Nodes[0].Data.(*domain.ImageGeneratorData).Prompt, "input graph must be untouched")
	})

	t.Run("unknown node is a no-op", func(t *testing.T) {
		out, ok := s.UpdateNodeData(g, "missing", domain.Patch{"prompt": "x"})
		assert.False(t, ok)
		assert.True(t, domain.Equal(g, out))
	})

	t.Run("mistyped patch is rejected", func(t *testing.T) {
		_, ok := s.UpdateNodeData(g, id, domain.Patch{"numberOfImages": "many"})
		assert.False(t, ok)
	})
}

func TestMoveNode(t *testing.T) {
	s := newTestStore()
	g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeText, domain.Position{}, nil)

	out, ok := s.MoveNode(g, id, domain.Position{X: -5000, Y: 1e6})
	require.True(t, ok)
	assert.Equal(t, domain.Position{X: -5000, Y: 1e6}, out.Nodes[0].Position)
	assert.Equal(t, domain.Position{}, g.Nodes[0].Position)
}

func TestSetLayoutCache(t *testing.T) {
	s := newTestStore()
	g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeText, domain.Position{}, nil)

	cache := domain.LayoutCache{HandleYOffsets: map[string]float64{domain.HandleTextOutput: 42}}
	out, ok := s.SetLayoutCache(g, id, cache)
	require.True(t, ok)

	assert.Equal(t, 42.0, out.Nodes[0].State().Layout.HandleYOffsets[domain.HandleTextOutput])
	assert.True(t, domain.Equal(g, out), "layout cache must not affect equality")
}

// chain builds text -> text_generator -> text_generator and returns the ids
func chain(t *testing.T, s *Store) (domain.Graph, []string) {
	t.Helper()
	g := domain.NewGraph()
	var ids []string
	for _, nt := range []domain.NodeType{domain.NodeTypeText, domain.NodeTypeTextGenerator, domain.NodeTypeTextGenerator} {
		var id string
		g, id = s.AddNode(g, nt, domain.Position{}, nil)
		ids = append(ids, id)
	}
	var cid string
	g, cid = s.AddConnection(g, ids[0], domain.HandleTextOutput, ids[1], domain.HandleTextInput)
	require.NotEmpty(t, cid)
	g, cid = s.AddConnection(g, ids[1], domain.HandleTextOutput, ids[2], domain.HandleTextInput)
	require.NotEmpty(t, cid)
	return g, ids
}

func TestDeleteNode(t *testing.T) {
	s := newTestStore()

	t.Run("removes every connection referencing the node and only those", func(t *testing.T) {
		g, ids := chain(t, s)
		g, extra := s.AddNode(g, domain.NodeTypeTextGenerator, domain.Position{}, nil)
		g, keep := s.AddConnection(g, ids[0], domain.HandleTextOutput, extra, domain.HandleTextInput)
		require.NotEmpty(t, keep)

		out := s.DeleteNode(g, ids[1])

		assert.False(t, out.HasNode(ids[1]))
		assert.Len(t, out.Nodes, 3)
		for _, c := range out.Connections {
			assert.False(t, c.Involves(ids[1]), "connection %s still references deleted node", c.ID)
		}
		_, ok := out.Connection(keep)
		assert.True(t, ok, "unrelated connection must survive")
		assert.Len(t, out.Connections, 1)
	})

	t.Run("batched delete", func(t *testing.T) {
		g, ids := chain(t, s)
		out := s.DeleteNodes(g, []string{ids[0], ids[2]})

		assert.Len(t, out.Nodes, 1)
		assert.Empty(t, out.Connections)
		assert.Len(t, g.Nodes, 3, "input graph must be untouched")
	})

	t.Run("unknown ids leave graph unchanged", func(t *testing.T) {
		g, _ := chain(t, s)
		out := s.DeleteNodes(g, []string{"missing"})
		assert.True(t, domain.Equal(g, out))
	})
}

func TestDuplicateNode(t *testing.T) {
	s := newTestStore()

	t.Run("copies type and data minus transient fields", func(t *testing.T) {
		g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeImageGenerator, domain.Position{X: 100, Y: 50}, &domain.ImageGeneratorData{
			NodeState:      domain.NodeState{IsLoading: true, Error: "quota", Layout: domain.LayoutCache{MinimizedHeight: 120}},
			Prompt:         "lighthouse",
			NumberOfImages: 2,
			AspectRatio:    "4:3",
			Images:         []string{"u1", "u2"},
		})

		out, dupID := s.DuplicateNode(g, id)
		require.NotEmpty(t, dupID)
		require.NotEqual(t, id, dupID)

		src, _ := out.Node(id)
		dup, _ := out.Node(dupID)
		assert.Equal(t, src.Type, dup.Type)
		assert.Equal(t, src.Position.Add(DefaultDuplicateOffset), dup.Position)

		want := domain.WithState(src.Data, domain.NodeState{Minimized: src.State().Minimized})
		assert.Empty(t, cmp.Diff(want, dup.Data, cmp.Comparer(func(a, b domain.LayoutCache) bool { return true })))
		assert.False(t, dup.State().IsLoading)
		assert.Empty(t, dup.State().Error)
		assert.True(t, dup.State().Layout.IsZero())
	})

	t.Run("does not copy connections", func(t *testing.T) {
		g, ids := chain(t, s)
		out, dupID := s.DuplicateNode(g, ids[1])
		require.NotEmpty(t, dupID)
		assert.Empty(t, out.ConnectionsOf(dupID))
		assert.Len(t, out.Connections, len(g.Connections))
	})

	t.Run("unknown node returns empty id", func(t *testing.T) {
		g := domain.NewGraph()
		out, dupID := s.DuplicateNode(g, "missing")
		assert.Empty(t, dupID)
		assert.Empty(t, out.Nodes)
	})

	t.Run("batched duplicate keeps relative offsets and drops inner edges", func(t *testing.T) {
		g, ids := chain(t, s)
		g, _ = s.MoveNode(g, ids[0], domain.Position{X: 0, Y: 0})
		g, _ = s.MoveNode(g, ids[1], domain.Position{X: 300, Y: 80})

		out, dupIDs := s.DuplicateNodes(g, []string{ids[0], ids[1], ids[0]})
		require.Len(t, dupIDs, 2)

		a, _ := out.Node(dupIDs[0])
		b, _ := out.Node(dupIDs[1])
		assert.Equal(t, domain.Position{X: 300, Y: 80}, b.Position.Sub(a.Position))
		assert.Empty(t, out.ConnectionsOf(dupIDs[0]))
		assert.Empty(t, out.ConnectionsOf(dupIDs[1]))
	})

	t.Run("custom offset", func(t *testing.T) {
		s := New(WithIDGenerator(sequentialIDs()), WithDuplicateOffset(domain.Position{X: 10, Y: 0}))
		g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeText, domain.Position{X: 1, Y: 1}, nil)
		out, dupID := s.DuplicateNode(g, id)
		dup, _ := out.Node(dupID)
		assert.Equal(t, domain.Position{X: 11, Y: 1}, dup.Position)
	})
}

func TestResetNode(t *testing.T) {
	s := newTestStore()
	g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeVideoGenerator, domain.Position{}, &domain.VideoGeneratorData{
		NodeState:       domain.NodeState{Error: "timeout", Minimized: true},
		Prompt:          "waves",
		DurationSeconds: 8,
		AspectRatio:     "9:16",
		VideoURL:        "v.mp4",
	})

	out, ok := s.ResetNode(g, id)
	require.True(t, ok)

	data := out.Nodes[0].Data.(*domain.VideoGeneratorData)
	assert.Empty(t, data.VideoURL)
	assert.Empty(t, data.Error)
	assert.Equal(t, "waves", data.Prompt)
	assert.Equal(t, 8, data.DurationSeconds)
	assert.True(t, data.Minimized)

	t.Run("batched reset skips unknown ids", func(t *testing.T) {
		out := s.ResetNodes(g, []string{id, "missing"})
		assert.Empty(t, out.Nodes[0].Data.(*domain.VideoGeneratorData).VideoURL)
	})
}

func TestApplyOutput(t *testing.T) {
	s := newTestStore()
	g, id := s.AddNode(domain.NewGraph(), domain.NodeTypeImageEditor, domain.Position{}, nil)
	g, _ = s.UpdateNodeData(g, id, domain.Patch{"isLoading": true})

	out, ok := s.ApplyOutput(g, id, domain.Output{Media: []string{"edited.png"}})
	require.True(t, ok)

	data := out.Nodes[0].Data.(*domain.ImageEditorData)
	assert.Equal(t, "edited.png", data.ImageURL)
	assert.False(t, data.IsLoading)

	t.Run("late result for a deleted node is a no-op", func(t *testing.T) {
		gone := s.DeleteNode(g, id)
		out, ok := s.ApplyOutput(gone, id, domain.Output{Media: []string{"late.png"}})
		assert.False(t, ok)
		assert.Empty(t, out.Nodes)
	})
}
