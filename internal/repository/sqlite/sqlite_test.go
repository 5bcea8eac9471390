package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"nodeflow/internal/domain"
	"nodeflow/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// sampleGraph builds a text node wired into an image generator with results
func sampleGraph() domain.Graph {
	g := domain.NewGraph()

	text := domain.NewNode("text-1", domain.NodeTypeText, domain.Position{X: 10.5, Y: -20})
	text.Data = &domain.TextData{Text: "a lighthouse at dusk"}

	gen := domain.NewNode("gen-1", domain.NodeTypeImageGenerator, domain.Position{X: 400, Y: 0})
	gen.Data = &domain.ImageGeneratorData{
		NodeState:      domain.NodeState{Minimized: true, Error: "partial"},
		Prompt:         "ignored when connected",
		NumberOfImages: 2,
		AspectRatio:    "16:9",
		Images:         []string{"https://cdn/1.png", "https://cdn/2.png"},
	}

	extract := domain.NewNode("ext-1", domain.NodeTypeCharacterExtractor, domain.Position{X: 800, Y: 0})
	extract.Data = &domain.CharacterExtractorData{Characters: []domain.Character{
		{Name: "Keeper", Description: "old man", ImageURL: "https://cdn/k.png"},
	}}

	g.Nodes = append(g.Nodes, *text, *gen, *extract)
	g.Connections = append(g.Connections,
		domain.Connection{ID: "c-1", FromNodeID: "text-1", FromHandleID: domain.HandleTextOutput, ToNodeID: "gen-1", ToHandleID: domain.HandlePromptInput},
		domain.Connection{ID: "c-2", FromNodeID: "gen-1", FromHandleID: domain.ImageOutputHandle(2), ToNodeID: "ext-1", ToHandleID: domain.HandleImageInput},
	)
	return g
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{
			name:     "valid string",
			input:    sql.NullString{String: "test", Valid: true},
			expected: "test",
		},
		{
			name:     "invalid string",
			input:    sql.NullString{String: "test", Valid: false},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEqual(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{":memory:", ":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"/var/lib/nodeflow.db", "/var/lib/nodeflow.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assertEqual(t, tt.expected, dsn(tt.path))
		})
	}
}

func TestNodeRowToDomain(t *testing.T) {
	t.Run("decodes payload by type", func(t *testing.T) {
		row := nodeRow{
			ID:        "n",
			Type:      string(domain.NodeTypeVideoGenerator),
			PositionX: 1,
			PositionY: 2,
			DataJSON:  sql.NullString{String: `{"prompt":"waves","videoUrl":"v.mp4"}`, Valid: true},
		}
		node, err := row.toDomain()
		assertNoError(t, err)

		data, ok := node.Data.(*domain.VideoGeneratorData)
		if !ok {
			t.Fatalf("expected video payload, got %T", node.Data)
		}
		assertEqual(t, "waves", data.Prompt)
		assertEqual(t, 5, data.DurationSeconds)
		assertEqual(t, domain.Position{X: 1, Y: 2}, node.Position)
	})

	t.Run("null data yields defaults", func(t *testing.T) {
		row := nodeRow{ID: "n", Type: string(domain.NodeTypeImageGenerator)}
		node, err := row.toDomain()
		assertNoError(t, err)
		assertEqual(t, 1, node.Data.(*domain.ImageGeneratorData).NumberOfImages)
	})

	t.Run("unknown type fails", func(t *testing.T) {
		row := nodeRow{ID: "n", Type: "hologram"}
		if _, err := row.toDomain(); err == nil {
			t.Fatal("expected error for unknown node type")
		}
	})
}

// ============================================================================
// Graph Persistence Tests
// ============================================================================

func TestSaveAndLoadGraph(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("round trips losslessly", func(t *testing.T) {
		g := sampleGraph()
		assertNoError(t, repo.SaveGraph(ctx, "p1", g))

		loaded, err := repo.LoadGraph(ctx, "p1")
		assertNoError(t, err)

		want, _ := json.Marshal(g)
		got, _ := json.Marshal(loaded)
		if string(want) != string(got) {
			t.Fatalf("round trip mismatch\nwant %s\ngot  %s", want, got)
		}
		if !domain.Equal(g, loaded) {
			t.Fatal("expected loaded graph to equal saved graph")
		}
	})

	t.Run("layout cache is not persisted", func(t *testing.T) {
		g := sampleGraph()
		g.Nodes[0].Data = domain.WithState(g.Nodes[0].Data, domain.NodeState{
			Layout: domain.LayoutCache{HandleYOffsets: map[string]float64{domain.HandleTextOutput: 50}},
		})
		assertNoError(t, repo.SaveGraph(ctx, "p2", g))

		loaded, err := repo.LoadGraph(ctx, "p2")
		assertNoError(t, err)
		if !loaded.Nodes[0].State().Layout.IsZero() {
			t.Errorf("expected empty layout cache, got %+v", loaded.Nodes[0].State().Layout)
		}
		if !domain.Equal(g, loaded) {
			t.Error("expected graphs equal modulo layout cache")
		}
	})

	t.Run("save replaces previous graph", func(t *testing.T) {
		assertNoError(t, repo.SaveGraph(ctx, "p3", sampleGraph()))

		smaller := sampleGraph()
		smaller.Nodes = smaller.Nodes[:1]
		smaller.Connections = nil
		assertNoError(t, repo.SaveGraph(ctx, "p3", smaller))

		loaded, err := repo.LoadGraph(ctx, "p3")
		assertNoError(t, err)
		assertEqual(t, 1, len(loaded.Nodes))
		assertEqual(t, 0, len(loaded.Connections))
	})

	t.Run("empty graph round trips", func(t *testing.T) {
		assertNoError(t, repo.SaveGraph(ctx, "empty", domain.NewGraph()))
		loaded, err := repo.LoadGraph(ctx, "empty")
		assertNoError(t, err)
		if loaded.Nodes == nil || loaded.Connections == nil {
			t.Error("expected initialized collections")
		}
	})

	t.Run("stale connections survive", func(t *testing.T) {
		g := sampleGraph()
		g.Nodes[1].Data.(*domain.ImageGeneratorData).NumberOfImages = 1
		assertNoError(t, repo.SaveGraph(ctx, "stale", g))

		loaded, err := repo.LoadGraph(ctx, "stale")
		assertNoError(t, err)
		assertEqual(t, 2, len(loaded.Connections))
	})

	t.Run("missing project", func(t *testing.T) {
		_, err := repo.LoadGraph(ctx, "nope")
		if !errors.Is(err, repository.ErrProjectNotFound) {
			t.Fatalf("expected ErrProjectNotFound, got %v", err)
		}
	})

	t.Run("dangling connection fails the whole save", func(t *testing.T) {
		assertNoError(t, repo.SaveGraph(ctx, "atomic", sampleGraph()))

		bad := sampleGraph()
		bad.Connections = append(bad.Connections, domain.Connection{
			ID: "c-x", FromNodeID: "ghost", FromHandleID: "x", ToNodeID: "gen-1", ToHandleID: domain.HandleReferenceInput,
		})
		if err := repo.SaveGraph(ctx, "atomic", bad); err == nil {
			t.Fatal("expected foreign key failure")
		}

		loaded, err := repo.LoadGraph(ctx, "atomic")
		assertNoError(t, err)
		assertEqual(t, 3, len(loaded.Nodes))
		assertEqual(t, 2, len(loaded.Connections))
	})
}

// ============================================================================
// Project Tests
// ============================================================================

func TestProjects(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveGraph(ctx, "alpha", sampleGraph()))
	assertNoError(t, repo.SaveGraph(ctx, "beta", domain.NewGraph()))

	projects, err := repo.ListProjects(ctx)
	assertNoError(t, err)
	assertEqual(t, 2, len(projects))

	counts := map[string]int{}
	for _, p := range projects {
		counts[p.ID] = p.NodeCount
		if p.Fingerprint == "" {
			t.Errorf("expected fingerprint for %s", p.ID)
		}
	}
	assertEqual(t, map[string]int{"alpha": 3, "beta": 0}, counts)

	t.Run("delete cascades", func(t *testing.T) {
		assertNoError(t, repo.SaveAsset(ctx, repository.Asset{
			ID: "a1", ProjectID: "alpha", NodeID: "gen-1", Kind: domain.HandleTypeImage, URL: "https://cdn/1.png",
		}))
		assertNoError(t, repo.DeleteProject(ctx, "alpha"))

		if _, err := repo.LoadGraph(ctx, "alpha"); !errors.Is(err, repository.ErrProjectNotFound) {
			t.Fatalf("expected ErrProjectNotFound, got %v", err)
		}
		assets, err := repo.ListAssets(ctx, "alpha")
		assertNoError(t, err)
		assertEqual(t, 0, len(assets))

		var nodes int
		assertNoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM nodes WHERE project_id = 'alpha'`).Scan(&nodes))
		assertEqual(t, 0, nodes)
	})

	t.Run("delete missing project", func(t *testing.T) {
		if err := repo.DeleteProject(ctx, "ghost"); !errors.Is(err, repository.ErrProjectNotFound) {
			t.Fatalf("expected ErrProjectNotFound, got %v", err)
		}
	})
}

// ============================================================================
// Asset Tests
// ============================================================================

func TestAssets(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	assertNoError(t, repo.SaveGraph(ctx, "p", sampleGraph()))

	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assertNoError(t, repo.SaveAsset(ctx, repository.Asset{
		ID: "a2", ProjectID: "p", NodeID: "gen-1", Kind: domain.HandleTypeImage, URL: "https://cdn/2.png", CreatedAt: first.Add(time.Minute),
	}))
	assertNoError(t, repo.SaveAsset(ctx, repository.Asset{
		ID: "a1", ProjectID: "p", NodeID: "gen-1", Kind: domain.HandleTypeImage, URL: "https://cdn/1.png", CreatedAt: first,
	}))

	assets, err := repo.ListAssets(ctx, "p")
	assertNoError(t, err)
	assertEqual(t, 2, len(assets))
	assertEqual(t, "a1", assets[0].ID)
	assertEqual(t, domain.HandleTypeImage, assets[0].Kind)
	if !assets[0].CreatedAt.Equal(first) {
		t.Errorf("expected created_at %v, got %v", first, assets[0].CreatedAt)
	}

	t.Run("unknown project", func(t *testing.T) {
		err := repo.SaveAsset(ctx, repository.Asset{ID: "a3", ProjectID: "ghost", NodeID: "n", Kind: domain.HandleTypeVideo, URL: "v"})
		if !errors.Is(err, repository.ErrProjectNotFound) {
			t.Fatalf("expected ErrProjectNotFound, got %v", err)
		}
	})

	t.Run("saving again updates the url", func(t *testing.T) {
		assertNoError(t, repo.SaveAsset(ctx, repository.Asset{
			ID: "a1", ProjectID: "p", NodeID: "gen-1", Kind: domain.HandleTypeImage, URL: "https://cdn/1b.png", CreatedAt: first,
		}))
		assets, err := repo.ListAssets(ctx, "p")
		assertNoError(t, err)
		assertEqual(t, "https://cdn/1b.png", assets[0].URL)
	})

	t.Run("deleted project stores nothing", func(t *testing.T) {
		assertNoError(t, repo.SaveGraph(ctx, "gone", sampleGraph()))
		assertNoError(t, repo.DeleteProject(ctx, "gone"))

		err := repo.SaveAsset(ctx, repository.Asset{ID: "a4", ProjectID: "gone", NodeID: "n", Kind: domain.HandleTypeImage, URL: "u"})
		if !errors.Is(err, repository.ErrProjectNotFound) {
			t.Fatalf("expected ErrProjectNotFound, got %v", err)
		}
		assets, err := repo.ListAssets(ctx, "gone")
		assertNoError(t, err)
		assertEqual(t, 0, len(assets))
	})
}
