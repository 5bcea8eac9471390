package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/internal/adapter"
	"nodeflow/internal/domain"
	"nodeflow/internal/repository/sqlite"
	"nodeflow/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	return newTestAppWithLatency(t, 0)
}

func newTestAppWithLatency(t *testing.T, latency time.Duration) *fiber.App {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)

	reg := adapter.NewRegistry(quietLogger())
	reg.SetFallback(adapter.NewStub("https://media", latency))

	var n atomic.Int64
	svc := service.NewGraphService(repo, reg, service.NewEventBus(), service.Options{
		IDGenerator: func() string { return fmt.Sprintf("id-%d", n.Add(1)) },
		Logger:      quietLogger(),
	})
	t.Cleanup(func() {
		svc.Close()
		repo.Close()
	})
	return NewApp(NewGraphHandler(svc, quietLogger()), nil, quietLogger())
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := app.Test(req)
	require.NoError(t, err)
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func createNode(t *testing.T, app *fiber.App, body string) domain.Node {
	t.Helper()
	res := do(t, app, http.MethodPost, "/api/projects/p1/nodes", body)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return decode[domain.Node](t, res)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	res := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, res)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)

	res := do(t, app, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nodeflow_history_commits_total")
}

func TestNodeLifecycle(t *testing.T) {
	app := newTestApp(t)

	n := createNode(t, app, `{"type":"text","position":{"x":10,"y":20},"data":{"text":"hello"}}`)
	assert.Equal(t, domain.NodeTypeText, n.Type)
	assert.Equal(t, "hello", n.Data.(*domain.TextData).Text)

	res := do(t, app, http.MethodPatch, "/api/projects/p1/nodes/"+n.ID, `{"text":"bye"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	updated := decode[domain.Node](t, res)
	assert.Equal(t, "bye", updated.Data.(*domain.TextData).Text)

	res = do(t, app, http.MethodPut, "/api/projects/p1/nodes/"+n.ID+"/position", `{"x":50,"y":60}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.Position{X: 50, Y: 60}, decode[domain.Node](t, res).Position)

	res = do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+n.ID+"/duplicate", "")
	require.Equal(t, http.StatusCreated, res.StatusCode)
	dup := decode[map[string][]string](t, res)["nodes"]
	require.Len(t, dup, 1)

	res = do(t, app, http.MethodGet, "/api/projects/p1/nodes/"+n.ID+"/geometry", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = do(t, app, http.MethodDelete, "/api/projects/p1/nodes/"+n.ID, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{n.ID}, decode[map[string][]string](t, res)["nodes"])

	res = do(t, app, http.MethodGet, "/api/projects/p1/graph", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	snap := decode[service.Snapshot](t, res)
	require.Len(t, snap.Graph.Nodes, 1)
	assert.Equal(t, dup[0], snap.Graph.Nodes[0].ID)
	assert.True(t, snap.CanUndo)
}

func TestErrorStatus(t *testing.T) {
	app := newTestApp(t)
	text := createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown node type", http.MethodPost, "/api/projects/p1/nodes", `{"type":"sound"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/projects/p1/nodes", `{"type":`, http.StatusBadRequest},
		{"missing node", http.MethodPatch, "/api/projects/p1/nodes/nope", `{"text":"x"}`, http.StatusNotFound},
		{"missing connection", http.MethodDelete, "/api/projects/p1/connections/nope", "", http.StatusNotFound},
		{"missing template", http.MethodPost, "/api/projects/p1/templates/nope", "", http.StatusNotFound},
		{"unknown export format", http.MethodGet, "/api/projects/p1/export?format=xml", "", http.StatusBadRequest},
		{"malformed import", http.MethodPost, "/api/projects/p1/import", `{"nodes":`, http.StatusBadRequest},
		{"text node cannot generate", http.MethodPost, "/api/projects/p1/nodes/" + text.ID + "/generate", "", http.StatusUnprocessableEntity},
		{"bad pointer phase", http.MethodPost, "/api/projects/p1/pointer", `{"phase":"wiggle"}`, http.StatusBadRequest},
		{"self loop", http.MethodPost, "/api/projects/p1/connections",
			fmt.Sprintf(`{"fromNodeId":%q,"fromHandleId":"text_output","toNodeId":%q,"toHandleId":"text_input"}`, text.ID, text.ID),
			http.StatusUnprocessableEntity},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, app, tt.method, tt.path, tt.body)
			defer res.Body.Close()
			assert.Equal(t, tt.want, res.StatusCode)
		})
	}
}

func TestConnectAndReplace(t *testing.T) {
	app := newTestApp(t)
	a := createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)
	b := createNode(t, app, `{"type":"text","position":{"x":0,"y":200}}`)
	gen := createNode(t, app, `{"type":"text_generator","position":{"x":300,"y":0}}`)

	connect := func(from string, replace bool) *http.Response {
		body := fmt.Sprintf(`{"fromNodeId":%q,"fromHandleId":"text_output","toNodeId":%q,"toHandleId":"text_input","replace":%t}`,
			from, gen.ID, replace)
		return do(t, app, http.MethodPost, "/api/projects/p1/connections", body)
	}

	res := connect(a.ID, false)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	first := decode[domain.Connection](t, res)
	assert.Equal(t, a.ID, first.FromNodeID)

	res = connect(b.ID, false)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	res.Body.Close()

	res = connect(b.ID, true)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	second := decode[domain.Connection](t, res)
	assert.Equal(t, b.ID, second.FromNodeID)

	res = do(t, app, http.MethodGet, "/api/projects/p1/graph", "")
	snap := decode[service.Snapshot](t, res)
	require.Len(t, snap.Graph.Connections, 1)
	assert.Equal(t, second.ID, snap.Graph.Connections[0].ID)

	res = do(t, app, http.MethodDelete, "/api/projects/p1/connections/"+second.ID, "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, app, http.MethodGet, "/api/projects/p1/stale", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[[]domain.Connection](t, res))
}

func TestGraphETag(t *testing.T) {
	app := newTestApp(t)
	createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)

	res := do(t, app, http.MethodGet, "/api/projects/p1/graph", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	etag := res.Header.Get("ETag")
	require.NotEmpty(t, etag)
	res.Body.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/projects/p1/graph", nil)
	req.Header.Set("If-None-Match", etag)
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res.StatusCode)
}

func TestUndoRedoAndSave(t *testing.T) {
	app := newTestApp(t)
	createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)

	res := do(t, app, http.MethodPost, "/api/projects/p1/save", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, decode[map[string]bool](t, res)["saved"])

	res = do(t, app, http.MethodPost, "/api/projects/p1/save", "")
	assert.Equal(t, false, decode[map[string]bool](t, res)["saved"])

	res = do(t, app, http.MethodPost, "/api/projects/p1/undo", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	undo := decode[historyResponse](t, res)
	assert.True(t, undo.Moved)
	assert.Empty(t, undo.Graph.Nodes)
	assert.True(t, undo.CanRedo)

	res = do(t, app, http.MethodPost, "/api/projects/p1/redo", "")
	redo := decode[historyResponse](t, res)
	assert.True(t, redo.Moved)
	assert.Len(t, redo.Graph.Nodes, 1)

	res = do(t, app, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	projects := decode[[]map[string]any](t, res)
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0]["id"])

	res = do(t, app, http.MethodDelete, "/api/projects/p1", "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = do(t, app, http.MethodDelete, "/api/projects/p1", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGenerateThroughStub(t *testing.T) {
	app := newTestApp(t)
	n := createNode(t, app, `{"type":"image_generator","position":{"x":0,"y":0},"data":{"prompt":"a fox"}}`)

	res := do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+n.ID+"/generate", "")
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, true, decode[map[string]bool](t, res)["started"])

	require.Eventually(t, func() bool {
		res := do(t, app, http.MethodGet, "/api/projects/p1/graph", "")
		snap := decode[service.Snapshot](t, res)
		got, ok := snap.Graph.Node(n.ID)
		if !ok {
			return false
		}
		data := got.Data.(*domain.ImageGeneratorData)
		return !data.IsLoading && len(data.Images) == 1
	}, 5*time.Second, 20*time.Millisecond)

	empty := createNode(t, app, `{"type":"image_generator","position":{"x":0,"y":300}}`)
	res = do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+empty.ID+"/generate", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, decode[map[string]bool](t, res)["started"])
}

func TestImportExport(t *testing.T) {
	app := newTestApp(t)
	createNode(t, app, `{"type":"text","position":{"x":1,"y":2},"data":{"text":"kept"}}`)

	res := do(t, app, http.MethodGet, "/api/projects/p1/export?format=yaml", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Disposition"), "p1.yaml")
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kept")

	req := httptest.NewRequest(http.MethodPost, "/api/projects/p2/import?format=yaml", strings.NewReader(string(body)))
	res, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	snap := decode[service.Snapshot](t, res)
	require.Len(t, snap.Graph.Nodes, 1)
	assert.Equal(t, "kept", snap.Graph.Nodes[0].Data.(*domain.TextData).Text)
	assert.False(t, snap.CanUndo)
}

func TestSelectionRoutes(t *testing.T) {
	app := newTestApp(t)
	a := createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)
	b := createNode(t, app, `{"type":"text","position":{"x":0,"y":200}}`)

	res := do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+a.ID+"/select", "")
	assert.Equal(t, []string{a.ID}, decode[map[string][]string](t, res)["selection"])

	res = do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+b.ID+"/select", `{"modified":true}`)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, decode[map[string][]string](t, res)["selection"])

	res = do(t, app, http.MethodDelete, "/api/projects/p1/selection", "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, app, http.MethodGet, "/api/projects/p1/graph", "")
	assert.Empty(t, decode[service.Snapshot](t, res).Selection)
}

func TestParamsOutliveRequest(t *testing.T) {
	t.Run("selection keeps its node id", func(t *testing.T) {
		app := newTestApp(t)
		a := createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)
		b := createNode(t, app, `{"type":"text","position":{"x":0,"y":200}}`)

		do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+a.ID+"/select", "").Body.Close()
		do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+b.ID+"/reset", "").Body.Close()

		res := do(t, app, http.MethodGet, "/api/projects/p1/graph", "")
		assert.Equal(t, []string{a.ID}, decode[service.Snapshot](t, res).Selection)
	})

	t.Run("overlapping generations both settle", func(t *testing.T) {
		app := newTestAppWithLatency(t, 100*time.Millisecond)
		a := createNode(t, app, `{"type":"image_generator","position":{"x":0,"y":0},"data":{"prompt":"a fox"}}`)
		b := createNode(t, app, `{"type":"image_generator","position":{"x":0,"y":300},"data":{"prompt":"a hen"}}`)

		res := do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+a.ID+"/generate", "")
		require.Equal(t, http.StatusAccepted, res.StatusCode)
		res.Body.Close()
		res = do(t, app, http.MethodPost, "/api/projects/p1/nodes/"+b.ID+"/generate", "")
		require.Equal(t, http.StatusAccepted, res.StatusCode)
		res.Body.Close()

		require.Eventually(t, func() bool {
			snap := decode[service.Snapshot](t, do(t, app, http.MethodGet, "/api/projects/p1/graph", ""))
			for _, id := range []string{a.ID, b.ID} {
				n, ok := snap.Graph.Node(id)
				if !ok {
					return false
				}
				data := n.Data.(*domain.ImageGeneratorData)
				if data.IsLoading || len(data.Images) != 1 {
					return false
				}
			}
			return true
		}, 5*time.Second, 20*time.Millisecond)
	})
}

func TestPointerRoute(t *testing.T) {
	app := newTestApp(t)
	n := createNode(t, app, `{"type":"text","position":{"x":0,"y":0}}`)

	res := do(t, app, http.MethodPost, "/api/projects/p1/pointer",
		fmt.Sprintf(`{"phase":"down","target":{"kind":"header","nodeId":%q},"x":5,"y":5}`, n.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, decode[service.PointerResult](t, res).Started)

	do(t, app, http.MethodPost, "/api/projects/p1/pointer", `{"phase":"move","x":45,"y":25}`).Body.Close()

	res = do(t, app, http.MethodPost, "/api/projects/p1/pointer", `{"phase":"up","x":45,"y":25}`)
	out := decode[service.PointerResult](t, res)
	assert.Equal(t, "moved", out.Outcome)
	assert.Equal(t, n.ID, out.NodeID)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, statusFor(fmt.Errorf("wrapped: %w", service.ErrNodeNotFound)))
	assert.Equal(t, fiber.StatusServiceUnavailable, statusFor(service.ErrClosed))
	assert.Equal(t, fiber.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
